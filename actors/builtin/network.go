package builtin

// Epochs are a fixed 30 seconds, so day-denominated schedules convert exactly.
const (
	EpochDurationSeconds = 30
	EpochsInHour         = 60 * 60 / EpochDurationSeconds
	EpochsInDay          = 24 * EpochsInHour
)
