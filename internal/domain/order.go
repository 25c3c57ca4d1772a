package domain

import "errors"

// OrderRequest es la orden que se envía al order sink.
type OrderRequest struct {
	TokenID string
	Side    Side
	Price   float64
	Size    float64 // en shares
}

// PlacedOrder es la respuesta síncrona del exchange.
type PlacedOrder struct {
	OrderID string
	Status  string
	Success bool
}

// ModelRequest es una llamada al servicio de modelos.
type ModelRequest struct {
	Model     string // vacío = modelo por defecto del adaptador
	System    string
	Prompt    string
	MaxTokens int
}

// ErrNotConfigured indica que el order sink no tiene credenciales o configuración
// para operar. No es transitorio.
var ErrNotConfigured = errors.New("order sink not configured")
