package registry

import (
	"os"

	"github.com/genway/genway/model"
)

// Presets returns the built-in provider descriptors. Credentials are read
// from the environment at seed time; a preset whose key variable is unset is
// seeded inactive so it shows up in the admin catalog but never receives
// traffic until an operator supplies a key.
//
// Seeding is additive only: Registry.Seed skips any (name, kind) an operator
// has already stored, so local edits and deactivations survive restarts.
func Presets() []model.ProviderDescriptor {
	return []model.ProviderDescriptor{
		keyedPreset("OPENAI_API_KEY", model.ProviderDescriptor{
			Name:        "openai",
			Description: "OpenAI chat completions",
			Kind:        model.KindText,
			BaseURL:     "https://api.openai.com/v1/chat/completions",
			Method:      "POST",
			Headers: []model.Header{
				{Name: "Content-Type", Value: "application/json"},
			},
			RequestBodyTemplate: map[string]any{
				"model": "{model}",
				"messages": []any{
					map[string]any{"role": "user", "content": "{prompt}"},
				},
				"temperature": "{temperature}",
				"max_tokens":  "{max_tokens}",
			},
			ResponseParser: model.ResponseParser{ContentPath: "choices.0.message.content"},
			Models:         []string{"gpt-4o", "gpt-4o-mini"},
		}),
		keyedPreset("ANTHROPIC_API_KEY", model.ProviderDescriptor{
			Name:        "anthropic",
			Description: "Anthropic messages",
			Kind:        model.KindText,
			BaseURL:     "https://api.anthropic.com/v1/messages",
			Method:      "POST",
			Headers: []model.Header{
				{Name: "Content-Type", Value: "application/json"},
				{Name: "anthropic-version", Value: "2023-06-01"},
			},
			RequestBodyTemplate: map[string]any{
				"model": "{model}",
				"messages": []any{
					map[string]any{"role": "user", "content": "{prompt}"},
				},
				"max_tokens": "{max_tokens}",
			},
			ResponseParser: model.ResponseParser{ContentPath: "content.0.text"},
			Models:         []string{"claude-sonnet-4-20250514", "claude-haiku-3-5"},
		}),
		keyedPreset("OPENAI_API_KEY", model.ProviderDescriptor{
			Name:        "openai-images",
			Description: "OpenAI image generation",
			Kind:        model.KindImage,
			BaseURL:     "https://api.openai.com/v1/images/generations",
			Method:      "POST",
			Headers: []model.Header{
				{Name: "Content-Type", Value: "application/json"},
			},
			RequestBodyTemplate: map[string]any{
				"model":  "{model}",
				"prompt": "{prompt}",
				"n":      "{number_of_images}",
				"size":   "1024x1024",
			},
			ResponseParser: model.ResponseParser{ContentPath: "data.0.url"},
			Models:         []string{"dall-e-3", "gpt-image-1"},
		}),
		keyedPreset("STABILITY_API_KEY", model.ProviderDescriptor{
			Name:        "stability",
			Description: "Stability image generation",
			Kind:        model.KindImage,
			BaseURL:     "https://api.stability.ai/v2beta/stable-image/generate/core",
			Method:      "POST",
			Headers: []model.Header{
				{Name: "Content-Type", Value: "application/json"},
				{Name: "Accept", Value: "application/json"},
			},
			RequestBodyTemplate: map[string]any{
				"prompt":        "{prompt}",
				"aspect_ratio":  "{aspect_ratio}",
				"output_format": "png",
			},
			ResponseParser: model.ResponseParser{ContentPath: "image"},
			Models:         []string{"stable-image-core"},
		}),
		keyedPreset("RUNWAY_API_KEY", model.ProviderDescriptor{
			Name:        "runway",
			Description: "Runway video generation",
			Kind:        model.KindVideo,
			BaseURL:     "https://api.dev.runwayml.com/v1/text_to_video",
			Method:      "POST",
			Headers: []model.Header{
				{Name: "Content-Type", Value: "application/json"},
				{Name: "X-Runway-Version", Value: "2024-11-06"},
			},
			RequestBodyTemplate: map[string]any{
				"model":       "{model}",
				"promptText":  "{prompt}",
				"duration":    "{duration_seconds}",
				"ratio":       "{aspect_ratio}",
			},
			ResponseParser: model.ResponseParser{ContentPath: "output.0"},
			Models:         []string{"gen4_turbo"},
		}),
		keyedPreset("SOCIAL_API_KEY", model.ProviderDescriptor{
			Name:        "social-drafts",
			Description: "Social media post drafting",
			Kind:        model.KindSocial,
			BaseURL:     "https://api.openai.com/v1/chat/completions",
			Method:      "POST",
			Headers: []model.Header{
				{Name: "Content-Type", Value: "application/json"},
			},
			RequestBodyTemplate: map[string]any{
				"model": "{model}",
				"messages": []any{
					map[string]any{"role": "system",
						"content": "Draft a short social media post for the request below."},
					map[string]any{"role": "user", "content": "{prompt}"},
				},
				"max_tokens": "{max_tokens}",
			},
			ResponseParser: model.ResponseParser{ContentPath: "choices.0.message.content"},
			Models:         []string{"gpt-4o-mini"},
		}),
	}
}

// keyedPreset attaches the bearer credential from the named environment
// variable. Presets without a key are left inactive.
func keyedPreset(keyEnv string, desc model.ProviderDescriptor) model.ProviderDescriptor {
	if key := os.Getenv(keyEnv); key != "" {
		desc.SetHeader("Authorization", "Bearer "+key)
		desc.IsActive = true
	}
	return desc
}
