package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del swarm.
type Config struct {
	Swarm    SwarmConfig    `yaml:"swarm"`
	Market   MarketConfig   `yaml:"market"`
	API      APIConfig      `yaml:"api"`
	Trading  TradingConfig  `yaml:"trading"`
	LLM      LLMConfig      `yaml:"llm"`
	Hivemind HivemindConfig `yaml:"hivemind"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// SwarmConfig controla el capital y la planificación de los agentes.
type SwarmConfig struct {
	Treasury            float64     `yaml:"treasury"`
	AllocationPerAgent  float64     `yaml:"allocation_per_agent"`
	Iterations          int         `yaml:"iterations"` // 0 = sin límite
	RoundSleepSeconds   int         `yaml:"round_sleep_seconds"`
	TradePauseSeconds   int         `yaml:"trade_pause_seconds"`
	ErrorBackoffSeconds int         `yaml:"error_backoff_seconds"`
	Markets             int         `yaml:"markets"`   // mercados por ronda
	PerAgent            int         `yaml:"per_agent"` // mercados evaluados por agente y ronda
	StatsLimit          int         `yaml:"stats_limit"`
	MinBalanceFraction  float64     `yaml:"min_balance_fraction"`
	Seed                int64       `yaml:"seed"` // 0 = derivada del reloj
	Agents              []AgentSpec `yaml:"agents"`
}

// AgentSpec declara un agente. Strategy vacío usa Name como estrategia.
type AgentSpec struct {
	Name       string  `yaml:"name"`
	Strategy   string  `yaml:"strategy"`
	Allocation float64 `yaml:"allocation"` // 0 = allocation_per_agent
	Arbitrate  *bool   `yaml:"arbitrate"`  // nil = según la estrategia
}

// MarketConfig controla la cache de mercados.
type MarketConfig struct {
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	MinVolume       float64 `yaml:"min_volume"`
	LookbackDays    int     `yaml:"lookback_days"`
	BookDepth       int     `yaml:"book_depth"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase       string `yaml:"clob_base"`
	GammaBase      string `yaml:"gamma_base"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// TradingConfig contiene las credenciales de trading. Sin private key el swarm es read-only.
type TradingConfig struct {
	PrivateKey string `yaml:"private_key"`
	RPCURL     string `yaml:"rpc_url"`
	ReadOnly   bool   `yaml:"read_only"`
}

// LLMConfig configura el modelo de la capa de veto y del llm_trader.
type LLMConfig struct {
	Provider       string `yaml:"provider"` // openai | deepseek | ollama
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	MaxTokens      int    `yaml:"max_tokens"`
	StrictJSON     bool   `yaml:"strict_json"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// HivemindConfig configura el consenso multi-modelo. Vacío = deshabilitado.
type HivemindConfig struct {
	SpecialistModels []string `yaml:"specialist_models"`
	CoordinatorModel string   `yaml:"coordinator_model"`
	MaxTokens        int      `yaml:"max_tokens"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
// Un path vacío arranca de la configuración por defecto.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// RoundSleep devuelve la pausa entre iteraciones.
func (c *Config) RoundSleep() time.Duration {
	return time.Duration(c.Swarm.RoundSleepSeconds) * time.Second
}

// TradePause devuelve la pausa tras un trade ejecutado.
func (c *Config) TradePause() time.Duration {
	return time.Duration(c.Swarm.TradePauseSeconds) * time.Second
}

// ErrorBackoff devuelve la espera tras un error de iteración.
func (c *Config) ErrorBackoff() time.Duration {
	return time.Duration(c.Swarm.ErrorBackoffSeconds) * time.Second
}

// CacheTTL devuelve el TTL de la cache de mercados.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Market.CacheTTLSeconds) * time.Second
}

// TradingEnabled indica si hay credenciales y no se forzó read-only.
func (c *Config) TradingEnabled() bool {
	return c.Trading.PrivateKey != "" && !c.Trading.ReadOnly
}

// LLMEnabled indica si hay un modelo configurado.
func (c *Config) LLMEnabled() bool {
	if c.LLM.Model == "" {
		return false
	}
	return c.LLM.APIKey != "" || strings.EqualFold(c.LLM.Provider, "ollama")
}

// HivemindEnabled indica si el consenso tiene coordinador y al menos un especialista.
func (c *Config) HivemindEnabled() bool {
	return c.LLMEnabled() && c.Hivemind.CoordinatorModel != "" && len(c.Hivemind.SpecialistModels) > 0
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLY_PRIVATE_KEY"); v != "" {
		cfg.Trading.PrivateKey = v
	}
	if v := os.Getenv("POLY_RPC_URL"); v != "" {
		cfg.Trading.RPCURL = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_FORCE_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LLM.StrictJSON = b
		}
	}
	if v := os.Getenv("HIVEMIND_SPECIALIST_MODELS"); v != "" {
		cfg.Hivemind.SpecialistModels = splitList(v)
	}
	if v := os.Getenv("HIVEMIND_COORDINATOR_MODEL"); v != "" {
		cfg.Hivemind.CoordinatorModel = v
	}
	if v := os.Getenv("HIVEMIND_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Hivemind.MaxTokens = n
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	s := &cfg.Swarm
	if s.Treasury <= 0 {
		s.Treasury = 1000
	}
	if s.AllocationPerAgent <= 0 {
		s.AllocationPerAgent = 100
	}
	if s.RoundSleepSeconds <= 0 {
		s.RoundSleepSeconds = 30
	}
	if s.TradePauseSeconds <= 0 {
		s.TradePauseSeconds = 2
	}
	if s.ErrorBackoffSeconds <= 0 {
		s.ErrorBackoffSeconds = 30
	}
	if s.Markets <= 0 {
		s.Markets = 100
	}
	if s.PerAgent <= 0 {
		s.PerAgent = 5
	}
	if s.StatsLimit <= 0 {
		s.StatsLimit = 100
	}
	if s.MinBalanceFraction <= 0 {
		s.MinBalanceFraction = 0.05
	}

	m := &cfg.Market
	if m.CacheTTLSeconds <= 0 {
		m.CacheTTLSeconds = 30
	}
	if m.MinVolume <= 0 {
		m.MinVolume = 1000
	}
	if m.LookbackDays <= 0 {
		m.LookbackDays = 45
	}
	if m.BookDepth <= 0 {
		m.BookDepth = 50
	}

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 10
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 256
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.Hivemind.MaxTokens <= 0 {
		cfg.Hivemind.MaxTokens = 384
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyswarm.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rechaza combinaciones que el swarm no puede arrancar.
func (c *Config) validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "deepseek", "ollama":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	seen := make(map[string]bool, len(c.Swarm.Agents))
	for i, a := range c.Swarm.Agents {
		if a.Name == "" {
			return fmt.Errorf("swarm.agents[%d]: empty name", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("swarm.agents[%d]: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = true
		if a.Allocation < 0 {
			return fmt.Errorf("swarm.agents[%d]: negative allocation", i)
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
