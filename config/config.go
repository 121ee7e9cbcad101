package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type OpenAI struct {
	OpenAIAPIKey       string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string        `yaml:"base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com"`
	OpenAIModel        string        `yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	ModelTemperature   float32       `yaml:"model_temperature" env:"MODEL_TEMPERATURE" env-default:"0.7"`
	MaxTokens          int           `yaml:"max_tokens" env:"OPENAI_MAX_TOKENS" env-default:"1024"`
	Stream             bool          `yaml:"stream" env:"OPENAI_STREAM" env-default:"true"`
	RequestTimeout     time.Duration `yaml:"request_timeout" env:"OPENAI_REQUEST_TIMEOUT" env-default:"60s"`
	MaxContextTokens   int           `yaml:"max_context_tokens" env:"OPENAI_MAX_CONTEXT_TOKENS"`
	TranscriptionModel string        `yaml:"transcription_model" env:"OPENAI_TRANSCRIPTION_MODEL" env-default:"whisper-1"`
	SpeechModel        string        `yaml:"speech_model" env:"OPENAI_SPEECH_MODEL" env-default:"tts-1"`
	SpeechVoice        string        `yaml:"speech_voice" env:"OPENAI_SPEECH_VOICE" env-default:"alloy"`
}

// Session holds product-level knobs of a conversation: persona, canned replies and the free tier.
type Session struct {
	SystemPrompt     string        `yaml:"system_prompt" env:"SESSION_SYSTEM_PROMPT" env-default:"You are Epic Tech AI, a helpful and concise assistant."`
	Greeting         string        `yaml:"greeting" env:"SESSION_GREETING" env-default:"Hello! I am Epic Tech AI. Ask me anything."`
	FallbackReply    string        `yaml:"fallback_reply" env:"SESSION_FALLBACK_REPLY" env-default:"Sorry, I couldn't generate a response."`
	ErrorPrefix      string        `yaml:"error_prefix" env:"SESSION_ERROR_PREFIX" env-default:"Error: "`
	FreeMessageLimit int           `yaml:"free_message_limit" env:"SESSION_FREE_MESSAGE_LIMIT" env-default:"10"`
	UpgradeURL       string        `yaml:"upgrade_url" env:"SESSION_UPGRADE_URL"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" env:"SESSION_IDLE_TIMEOUT" env-default:"30m"`
}

type Redis struct {
	Endpoint string `yaml:"endpoint" env:"REDIS_ENDPOINT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

const (
	StorageDriverFile   = "file"
	StorageDriverMemory = "memory"
)

// Storage selects where sessions without a remote store live. The memory driver keeps them for the
// lifetime of the process only.
type Storage struct {
	Driver   string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"file"`
	LocalDir string `yaml:"local_dir" env:"STORAGE_LOCAL_DIR" env-default:"./data/sessions"`
}

type Media struct {
	PollinationsBaseURL   string        `yaml:"pollinations_base_url" env:"MEDIA_POLLINATIONS_BASE_URL" env-default:"https://image.pollinations.ai"`
	ImageWidth            int           `yaml:"image_width" env:"MEDIA_IMAGE_WIDTH" env-default:"512"`
	ImageHeight           int           `yaml:"image_height" env:"MEDIA_IMAGE_HEIGHT" env-default:"512"`
	ReplicateBaseURL      string        `yaml:"replicate_base_url" env:"MEDIA_REPLICATE_BASE_URL" env-default:"https://api.replicate.com"`
	ReplicateAPIToken     string        `yaml:"replicate_api_token" env:"REPLICATE_API_TOKEN"`
	ReplicateVideoVersion string        `yaml:"replicate_video_version" env:"MEDIA_REPLICATE_VIDEO_VERSION" env-default:"anotherjesse/zeroscope-v2-xl:9f747673945c62801b13b84701c783929c0ee784e4748ec062204894dda1a351"`
	ReplicatePollInterval time.Duration `yaml:"replicate_poll_interval" env:"MEDIA_REPLICATE_POLL_INTERVAL" env-default:"1s"`
	MubertEndpoint        string        `yaml:"mubert_endpoint" env:"MEDIA_MUBERT_ENDPOINT" env-default:"https://api-b2b.mubert.com/v2/RecordTrack"`
	MubertLicense         string        `yaml:"mubert_license" env:"MEDIA_MUBERT_LICENSE" env-default:"free"`
	MusicFallbackURL      string        `yaml:"music_fallback_url" env:"MEDIA_MUSIC_FALLBACK_URL" env-default:"https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3"`
	Timeout               time.Duration `yaml:"timeout" env:"MEDIA_TIMEOUT" env-default:"90s"`
	RetryMax              int           `yaml:"retry_max" env:"MEDIA_RETRY_MAX" env-default:"2"`
}

type Telegram struct {
	TelegramAPIToken      string        `yaml:"api_token" env:"TELEGRAM_APITOKEN"`
	AdminTelegramIDList   []int64       `yaml:"admin_telegram_id_list" env:"TELEGRAM_ADMIN_ID_LIST" env-separator:","`
	PremiumTelegramIDList []int64       `yaml:"premium_telegram_id_list" env:"TELEGRAM_PREMIUM_ID_LIST" env-separator:","`
	IsNotPublic           bool          `yaml:"is_not_public" env:"TELEGRAM_IS_NOT_PUBLIC" env-default:"false"`
	EditInterval          time.Duration `yaml:"edit_interval" env:"TELEGRAM_EDIT_INTERVAL" env-default:"2500ms"`
}

type HTTP struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	// TrustIdentityHeaders takes X-User-ID and X-User-Plan from requests as is.
	TrustIdentityHeaders bool `yaml:"trust_identity_headers" env:"HTTP_TRUST_IDENTITY_HEADERS" env-default:"false"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	File  string `yaml:"file" env:"LOG_FILE"`
}

type Config struct {
	OpenAI   OpenAI   `yaml:"openai"`
	Session  Session  `yaml:"session"`
	Redis    Redis    `yaml:"redis"`
	Storage  Storage  `yaml:"storage"`
	Media    Media    `yaml:"media"`
	Telegram Telegram `yaml:"telegram"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
}

// LoadConfig reads cfgPath (if any) and overlays the environment on top of it.
func LoadConfig(cfgPath string) (*Config, error) {
	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
