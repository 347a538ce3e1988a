package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrRegistryEmpty       = errors.New("symbol registry not populated")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderFailed         = errors.New("order failed")
	ErrLiquidationFailed   = errors.New("emergency liquidation failed")
	ErrAlreadyTrading      = errors.New("trade already in progress")
	ErrClientNotReady      = errors.New("exchange client not ready")
	ErrInvalidPath         = errors.New("invalid trading path")
	ErrNoLowLatencyChannel = errors.New("low-latency order channel unavailable")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrOrderNotSent        = errors.New("order not sent")
	ErrLockHeld            = errors.New("lock already held")
	ErrTradeTimeout        = errors.New("trade timed out")
)
