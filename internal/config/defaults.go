package config

const (
	DefaultBaseURL             = "https://ai-proxy.lab.epam.com"
	DefaultCompletionsEndpoint = DefaultBaseURL + "/openai/deployments/{deployment}/chat/completions"
	DefaultPrompt              = "What do you see on this pictures?"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Dial: DialConfig{
			BaseURL:             DefaultBaseURL,
			CompletionsEndpoint: DefaultCompletionsEndpoint,
			TimeoutSeconds:      0,
		},
		Storage: StorageConfig{
			Backend: "dial",
			S3: S3Config{
				Region:            "us-east-1",
				PresignTTLMinutes: 60,
			},
		},
		Run: RunConfig{
			ImagesDir: ".",
			Images: []ImageConfig{
				{File: "dialx-banner.png", MimeType: "image/png"},
				{File: "pic2.jpg", MimeType: "image/jpg"},
			},
			// gemini-2.5-pro rejects image/jpg attachments.
			Deployments: []string{"gpt-4o", "gemini-2.5-pro"},
			Prompt:      DefaultPrompt,
		},
		History: HistoryConfig{
			Enabled: false,
			DBPath:  "~/.dialvision/history.db",
		},
		Notify: NotifyConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
		},
	}
}
