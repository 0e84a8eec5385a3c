package models

const (
	// DefaultCancellationCutoffDays минимальное число дней до заезда для отмены гостем
	DefaultCancellationCutoffDays = 2

	// DefaultFeeRate единая ставка сбора (уборка + сервис)
	DefaultFeeRate = 0.10

	// DefaultAvailabilityHorizonDays ширина начального окна доступности
	DefaultAvailabilityHorizonDays = 365

	// DefaultMaxNights максимальная длительность проживания
	DefaultMaxNights = 365

	// DefaultMaxAdvanceDays насколько далеко вперед можно бронировать
	DefaultMaxAdvanceDays = 730

	// DefaultBookingRateLimit попыток бронирования на пользователя в окне
	DefaultBookingRateLimit = 20

	// DefaultBookingRateWindow окно ограничения частоты бронирований
	DefaultBookingRateWindow = 60 // 1 минута в секундах

	// DefaultLockTTL время жизни блокировки объекта
	DefaultLockTTL = 10 // секунд

	// WorkerBatchSize размер пачки задач outbox
	WorkerBatchSize = 20
)
