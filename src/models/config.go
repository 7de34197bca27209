package models

// MConfig Structure
type MConfig struct {
	Name      string          `yaml:"name" env:"TRACKER_NAME"`
	Host      string          `yaml:"host" env:"TRACKER_HOST"`
	Port      int             `yaml:"port" env:"TRACKER_PORT"`
	LogLevel  string          `yaml:"log_level" env:"TRACKER_LOG_LEVEL"`
	LogFormat string          `yaml:"log_format" env:"TRACKER_LOG_FORMAT"`
	GrpcHost  string          `yaml:"grpc_host" env:"TRACKER_GRPC_HOST"`
	GrpcPort  int             `yaml:"grpc_port" env:"TRACKER_GRPC_PORT"`
	Storage   MStorageConfig  `yaml:"storage"`
	Tracking  MTrackingConfig `yaml:"tracking"`
	Replay    MReplayConfig   `yaml:"replay"`
	Ingest    MIngestConfig   `yaml:"ingest"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type" env:"TRACKER_DB_TYPE"`
	DBPath             string `yaml:"db_path" env:"TRACKER_DB_PATH"`
	DBConnectionString string `yaml:"db_connection_string" env:"TRACKER_DB_CONNECTION_STRING"`
	RetentionDays      int    `yaml:"retention_days" env:"TRACKER_RETENTION_DAYS"`
}

type MTrackingConfig struct {
	StaleAfterMs     int64 `yaml:"stale_after_ms" env:"TRACKER_STALE_AFTER_MS"`
	IdleEvictSeconds int   `yaml:"idle_evict_seconds" env:"TRACKER_IDLE_EVICT_SECONDS"`
	SubscriberBuffer int   `yaml:"subscriber_buffer" env:"TRACKER_SUBSCRIBER_BUFFER"`
	TrackQueueSize   int   `yaml:"track_queue_size" env:"TRACKER_TRACK_QUEUE_SIZE"`
}

type MReplayConfig struct {
	MaxWindowMinutes int     `yaml:"max_window_minutes" env:"TRACKER_REPLAY_MAX_WINDOW_MINUTES"`
	DefaultHz        float64 `yaml:"default_hz" env:"TRACKER_REPLAY_DEFAULT_HZ"`
}

type MIngestConfig struct {
	SharedKey     string  `yaml:"shared_key" env:"TRACKER_INGEST_KEY"`
	RatePerSecond float64 `yaml:"rate_per_second" env:"TRACKER_INGEST_RATE"`
	Burst         int     `yaml:"burst" env:"TRACKER_INGEST_BURST"`
}
