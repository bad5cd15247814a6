package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/osvaldoandrade/dossier/internal/backoff"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          int    `yaml:"port"`
	Env           string `yaml:"env"`
	Timezone      string `yaml:"timezone"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	// PersistenceProvider selects the record/upload/corpus store: redis or memory.
	PersistenceProvider string `yaml:"persistenceProvider"`

	MaxWorkers            int `yaml:"maxWorkers"`
	RequestTimeoutSeconds int `yaml:"requestTimeoutSeconds"`
	AnswerTimeoutSeconds  int `yaml:"answerTimeoutSeconds"`
	// SectionConcurrency > 1 enables bounded section fan-out. 1 is sequential.
	SectionConcurrency int `yaml:"sectionConcurrency"`

	GenAI     GenAIConfig      `yaml:"genai"`
	Pipelines []PipelineConfig `yaml:"pipelines"`

	Transport    string   `yaml:"transport"`
	KafkaBrokers []string `yaml:"kafkaBrokers"`
	KafkaGroupID string   `yaml:"kafkaGroupId"`

	// Pub/Sub topics are named after the pipeline queues; each input queue
	// is read through the subscription <queue><suffix>.
	PubSubProject            string `yaml:"pubsubProject"`
	PubSubSubscriptionSuffix string `yaml:"pubsubSubscriptionSuffix"`

	Storage StorageConfig `yaml:"storage"`
	Render  RenderConfig  `yaml:"render"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`

	ProducerAuthProvider string         `yaml:"producerAuthProvider"`
	ProducerAuthConfig   map[string]any `yaml:"producerAuthConfig"`

	TracingEnabled   bool    `yaml:"tracingEnabled"`
	OTLPEndpoint     string  `yaml:"otlpEndpoint"`
	OTLPInsecure     bool    `yaml:"otlpInsecure"`
	TraceSampleRatio float64 `yaml:"traceSampleRatio"`

	WebhookHmacSecret               string `yaml:"webhookHmacSecret"`
	ResultWebhookMaxAttempts        int    `yaml:"resultWebhookMaxAttempts"`
	ResultWebhookBaseBackoffSeconds int    `yaml:"resultWebhookBaseBackoffSeconds"`
	ResultWebhookMaxBackoffSeconds  int    `yaml:"resultWebhookMaxBackoffSeconds"`

	// ResultWebhookBackoffPolicy is one of fixed, linear, exponential,
	// exp_equal_jitter or exp_full_jitter.
	ResultWebhookBackoffPolicy string `yaml:"resultWebhookBackoffPolicy"`
}

type GenAIConfig struct {
	Project     string `yaml:"project"`
	Location    string `yaml:"location"`
	APIKey      string `yaml:"apiKey"`
	UseVertexAI bool   `yaml:"useVertexAi"`
	Model       string `yaml:"model"`
	// MaxToolTurns bounds how many tool round trips one answer may take.
	MaxToolTurns            int     `yaml:"maxToolTurns"`
	SimilarityTopK          int     `yaml:"similarityTopK"`
	VectorDistanceThreshold float64 `yaml:"vectorDistanceThreshold"`
}

// PipelineConfig binds one work type to its inbound queue and outbound topic.
type PipelineConfig struct {
	WorkType    string `yaml:"workType"`
	InputQueue  string `yaml:"inputQueue"`
	OutputTopic string `yaml:"outputTopic"`
	Disabled    bool   `yaml:"disabled"`
}

type StorageConfig struct {
	Provider          string `yaml:"provider"`
	Bucket            string `yaml:"bucket"`
	PublicRead        bool   `yaml:"publicRead"`
	LocalArtifactsDir string `yaml:"localArtifactsDir"`
}

type RenderConfig struct {
	// Converter turns report markdown into PDF: chrome or pandoc.
	Converter      string `yaml:"converter"`
	ChromeBin      string `yaml:"chromeBin"`
	PandocPath     string `yaml:"pandocPath"`
	PDFEngine      string `yaml:"pdfEngine"`
	SofficePath    string `yaml:"sofficePath"`
	PdftoppmPath   string `yaml:"pdftoppmPath"`
	SlideTemplate  string `yaml:"slideTemplate"`
	RasterDPI      int    `yaml:"rasterDpi"`
	ExpectedImages int    `yaml:"expectedImages"`
}

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	Producer  RateLimitBucketConfig `yaml:"producer"`
	Answering RateLimitBucketConfig `yaml:"answering"`
	Webhook   RateLimitBucketConfig `yaml:"webhook"`
}

// LoadConfigOptional behaves like LoadConfig but treats an empty or missing
// path as "defaults plus environment".
func LoadConfigOptional(filePath string) (*Config, error) {
	if strings.TrimSpace(filePath) == "" {
		return finish(&Config{}), nil
	}
	c, err := LoadConfig(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return finish(&Config{}), nil
	}
	return c, err
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return finish(&c), nil
}

func finish(c *Config) *Config {
	applyEnv(c)
	applyDefaults(c)
	log.Printf("Dossier Config: {Port:%d Redis:%s Transport:%s Storage:%s Workers:%d Model:%s}\n",
		c.Port, c.RedisAddr, c.Transport, c.Storage.Provider, c.MaxWorkers, c.GenAI.Model)
	return c
}

func applyEnv(c *Config) {
	envInt("PORT", &c.Port)
	envString("ENV", &c.Env)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("LOG_FORMAT", &c.LogFormat)
	envString("REDIS_ADDR", &c.RedisAddr)
	envString("REDIS_PASSWORD", &c.RedisPassword)
	envString("PERSISTENCE_PROVIDER", &c.PersistenceProvider)
	envInt("MAX_WORKERS", &c.MaxWorkers)
	envInt("TIMEOUT_SECONDS", &c.AnswerTimeoutSeconds)
	envInt("REQUEST_TIMEOUT_SECONDS", &c.RequestTimeoutSeconds)
	envInt("SECTION_CONCURRENCY", &c.SectionConcurrency)

	envString("GOOGLE_CLOUD_PROJECT", &c.GenAI.Project)
	envString("GOOGLE_CLOUD_LOCATION", &c.GenAI.Location)
	envString("GOOGLE_API_KEY", &c.GenAI.APIKey)
	envBool("GOOGLE_GENAI_USE_VERTEXAI", &c.GenAI.UseVertexAI)
	envString("MODEL_NAME", &c.GenAI.Model)

	envString("TRANSPORT", &c.Transport)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = splitList(v)
	}
	envString("KAFKA_GROUP_ID", &c.KafkaGroupID)
	envString("PUBSUB_PROJECT_ID", &c.PubSubProject)
	envString("PUBSUB_SUBSCRIPTION_SUFFIX", &c.PubSubSubscriptionSuffix)

	envString("STORAGE_PROVIDER", &c.Storage.Provider)
	envString("BUCKET_NAME", &c.Storage.Bucket)
	envString("LOCAL_ARTIFACTS_DIR", &c.Storage.LocalArtifactsDir)
	envString("CONVERTER", &c.Render.Converter)
	envString("CHROME_BIN", &c.Render.ChromeBin)
	envString("SLIDE_TEMPLATE", &c.Render.SlideTemplate)

	envString("PRODUCER_AUTH_PROVIDER", &c.ProducerAuthProvider)
	if v := os.Getenv("PRODUCER_AUTH_TOKEN"); v != "" {
		if c.ProducerAuthConfig == nil {
			c.ProducerAuthConfig = map[string]any{}
		}
		c.ProducerAuthConfig["token"] = v
	}

	envBool("TRACING_ENABLED", &c.TracingEnabled)
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTLPEndpoint)
	envString("WEBHOOK_HMAC_SECRET", &c.WebhookHmacSecret)
	envInt("RESULT_WEBHOOK_MAX_ATTEMPTS", &c.ResultWebhookMaxAttempts)
	envString("RESULT_WEBHOOK_BACKOFF_POLICY", &c.ResultWebhookBackoffPolicy)
}

func applyDefaults(c *Config) {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.PersistenceProvider == "" {
		c.PersistenceProvider = "redis"
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 1800
	}
	if c.AnswerTimeoutSeconds <= 0 {
		c.AnswerTimeoutSeconds = 300
	}
	if c.SectionConcurrency <= 0 {
		c.SectionConcurrency = 1
	}
	if c.GenAI.Model == "" {
		c.GenAI.Model = "gemini-2.5-flash"
	}
	if c.GenAI.Location == "" {
		c.GenAI.Location = "us-central1"
	}
	if c.GenAI.MaxToolTurns <= 0 {
		c.GenAI.MaxToolTurns = 6
	}
	if c.GenAI.SimilarityTopK <= 0 {
		c.GenAI.SimilarityTopK = 10
	}
	if c.GenAI.VectorDistanceThreshold <= 0 {
		c.GenAI.VectorDistanceThreshold = 0.6
	}
	if len(c.Pipelines) == 0 {
		c.Pipelines = []PipelineConfig{
			{WorkType: "report", InputQueue: "analysis-requests", OutputTopic: "analysis-results"},
			{WorkType: "infographic", InputQueue: "infographic-requests", OutputTopic: "infographic-results"},
		}
	}
	if c.Transport == "" {
		c.Transport = "redis"
	}
	if c.KafkaGroupID == "" {
		c.KafkaGroupID = "dossier"
	}
	if c.PubSubProject == "" {
		c.PubSubProject = c.GenAI.Project
	}
	if c.PubSubSubscriptionSuffix == "" {
		c.PubSubSubscriptionSuffix = "-sub"
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = "local"
	}
	if c.Storage.LocalArtifactsDir == "" {
		c.Storage.LocalArtifactsDir = "/tmp/dossier-artifacts"
	}
	if c.Render.Converter == "" {
		c.Render.Converter = "chrome"
	}
	if c.Render.PandocPath == "" {
		c.Render.PandocPath = "pandoc"
	}
	if c.Render.PDFEngine == "" {
		c.Render.PDFEngine = "xelatex"
	}
	if c.Render.SofficePath == "" {
		c.Render.SofficePath = "soffice"
	}
	if c.Render.PdftoppmPath == "" {
		c.Render.PdftoppmPath = "pdftoppm"
	}
	if c.Render.SlideTemplate == "" {
		c.Render.SlideTemplate = "templates/infographic.pptx"
	}
	if c.Render.RasterDPI <= 0 {
		c.Render.RasterDPI = 220
	}
	if c.Render.ExpectedImages <= 0 {
		c.Render.ExpectedImages = 3
	}
	if c.ResultWebhookMaxAttempts <= 0 {
		c.ResultWebhookMaxAttempts = 5
	}
	if c.ResultWebhookBaseBackoffSeconds <= 0 {
		c.ResultWebhookBaseBackoffSeconds = 2
	}
	if c.ResultWebhookMaxBackoffSeconds <= 0 {
		c.ResultWebhookMaxBackoffSeconds = 60
	}
	if strings.TrimSpace(c.ResultWebhookBackoffPolicy) == "" {
		c.ResultWebhookBackoffPolicy = string(backoff.Exponential)
	}
}

func (c *Config) Validate() error {
	var errs []string
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	if c.ProducerAuthProvider == "" && !dev {
		errs = append(errs, "producerAuthProvider is required in non-dev")
	}
	if c.SectionConcurrency > 4 {
		errs = append(errs, "sectionConcurrency must be between 1 and 4")
	}

	switch c.PersistenceProvider {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Sprintf("unknown persistenceProvider %q", c.PersistenceProvider))
	}

	switch c.Transport {
	case "redis":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, "kafkaBrokers is required when transport=kafka")
		}
	case "pubsub":
		if c.PubSubProject == "" {
			errs = append(errs, "pubsubProject is required when transport=pubsub")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown transport %q", c.Transport))
	}

	switch c.Storage.Provider {
	case "local":
	case "gcs":
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			errs = append(errs, "storage.bucket is required when storage.provider=gcs")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown storage.provider %q", c.Storage.Provider))
	}

	switch c.Render.Converter {
	case "chrome", "pandoc":
	default:
		errs = append(errs, fmt.Sprintf("unknown render.converter %q", c.Render.Converter))
	}

	if c.GenAI.UseVertexAI {
		if c.GenAI.Project == "" {
			errs = append(errs, "genai.project is required when useVertexAi=true")
		}
	} else if c.GenAI.APIKey == "" && !dev {
		errs = append(errs, "genai.apiKey is required when useVertexAi=false")
	}

	seen := map[string]bool{}
	for _, p := range c.Pipelines {
		wt := strings.ToLower(strings.TrimSpace(p.WorkType))
		if wt != "report" && wt != "infographic" {
			errs = append(errs, fmt.Sprintf("pipeline has unknown workType %q", p.WorkType))
			continue
		}
		if seen[wt] {
			errs = append(errs, fmt.Sprintf("pipeline %s declared twice", wt))
		}
		seen[wt] = true
		if p.InputQueue == "" || p.OutputTopic == "" {
			errs = append(errs, fmt.Sprintf("pipeline %s needs inputQueue and outputTopic", wt))
		}
	}

	if c.OTLPEndpoint != "" && strings.Contains(c.OTLPEndpoint, "://") {
		if u, err := url.Parse(c.OTLPEndpoint); err != nil || u.Host == "" {
			errs = append(errs, "otlpEndpoint must be host:port or a valid URL")
		}
	}

	if c.ResultWebhookMaxAttempts > 0 && strings.TrimSpace(c.WebhookHmacSecret) == "" && !dev {
		errs = append(errs, "webhookHmacSecret is required when webhooks are enabled")
	}
	if _, err := backoff.ParsePolicy(c.ResultWebhookBackoffPolicy); err != nil {
		errs = append(errs, fmt.Sprintf("resultWebhookBackoffPolicy: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Pipeline returns the enabled pipeline for a work type.
func (c *Config) Pipeline(workType string) (PipelineConfig, bool) {
	for _, p := range c.Pipelines {
		if strings.EqualFold(p.WorkType, workType) && !p.Disabled {
			return p, true
		}
	}
	return PipelineConfig{}, false
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := strings.TrimSpace(strings.ToLower(os.Getenv(key))); v != "" {
		*dst = v == "true" || v == "1" || v == "yes" || v == "on"
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
