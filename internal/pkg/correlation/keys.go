package correlation

// Header and Locals keys shared by middlewares, controllers and the access log.
const (
	HeaderName = "X-Correlation-ID"
	LocalsKey  = "correlation_id"
)

// maxLength bounds client-supplied ids so they stay usable as log fields.
const maxLength = 128
