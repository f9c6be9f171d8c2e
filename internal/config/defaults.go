package config

const (
	defaultConfigPath               = "~/.config/danmu/config.toml"
	defaultDataDir                  = "~/.local/share/danmu"
	defaultAPIBind                  = "127.0.0.1:7768"
	defaultDatabaseDriver           = "sqlite"
	defaultGatewayTimeoutSeconds    = 30
	defaultGatewayRequestsPerSecond = 4
	defaultGatewayUserAgent         = "danmu/0.1"
	defaultRateWindowSeconds        = 3600
	defaultRateLimit                = 50
	defaultMaxConcurrent            = 2
	defaultBulkPacingMS             = 100
	defaultDeleteRetryAttempts      = 3
	defaultDeleteRetryBaseMS        = 2000
	defaultHeartbeatInterval        = 15
	defaultHistoryRetentionDays     = 3
	defaultMaintenanceIntervalHours = 24
	defaultNotifyRequestTimeout     = 10
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Database: Database{
			Driver: defaultDatabaseDriver,
		},
		Gateway: Gateway{
			TimeoutSeconds:    defaultGatewayTimeoutSeconds,
			RequestsPerSecond: defaultGatewayRequestsPerSecond,
			UserAgent:         defaultGatewayUserAgent,
		},
		RateLimit: RateLimit{
			WindowSeconds: defaultRateWindowSeconds,
			DefaultLimit:  defaultRateLimit,
			Providers:     map[string]int{},
		},
		Tasks: Tasks{
			MaxConcurrent:            defaultMaxConcurrent,
			BulkPacingMS:             defaultBulkPacingMS,
			DeleteRetryAttempts:      defaultDeleteRetryAttempts,
			DeleteRetryBaseMS:        defaultDeleteRetryBaseMS,
			HeartbeatInterval:        defaultHeartbeatInterval,
			HistoryRetentionDays:     defaultHistoryRetentionDays,
			MaintenanceIntervalHours: defaultMaintenanceIntervalHours,
		},
		Providers: map[string]Provider{
			"bilibili": {Enabled: true, DisplayOrder: 1},
			"tencent":  {Enabled: true, DisplayOrder: 2},
			"iqiyi":    {Enabled: true, DisplayOrder: 3},
			"youku":    {Enabled: true, DisplayOrder: 4},
			"mgtv":     {Enabled: true, DisplayOrder: 5},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			OnFailure:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
