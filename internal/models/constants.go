package models

import "time"

const (
	// DefaultQueueCapacity максимальное число отложенных отправок на тип
	DefaultQueueCapacity = 10

	// DefaultSyncRetryLimit попыток синхронизации до выбраковки
	DefaultSyncRetryLimit = 5

	// DefaultMaxAttempts онлайн-попыток в одной отправке
	DefaultMaxAttempts = 3

	// DefaultSuggestionLimit подсказок кода за раз
	DefaultSuggestionLimit = 5

	// DefaultCredentialHistory глубина истории кодов на владельца
	DefaultCredentialHistory = 20

	// DefaultRedisTTL время жизни кэша кода в Redis
	DefaultRedisTTL = 30 * 24 * time.Hour
)

const (
	// DefaultProbeInterval период фонового замера связи
	DefaultProbeInterval = 30 * time.Second

	// DefaultProbeTimeout таймаут одного замера
	DefaultProbeTimeout = 5 * time.Second

	// DefaultFastThreshold граница FAST
	DefaultFastThreshold = 300 * time.Millisecond

	// DefaultSlowThreshold граница SLOW, дальше OFFLINE
	DefaultSlowThreshold = 2 * time.Second
)

const (
	// DefaultRemoteTimeout таймаут одного запроса к сервису
	DefaultRemoteTimeout = 10 * time.Second

	// DefaultSyncRPS ограничение частоты запросов при синхронизации
	DefaultSyncRPS = 2.0

	// DefaultSyncBurst допустимый всплеск при синхронизации
	DefaultSyncBurst = 1
)

// Credential structural bounds.
const (
	CredentialMinLen = 4
	CredentialMaxLen = 12
)
