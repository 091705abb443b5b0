package domain

import (
	"log/slog"

	"github.com/tidwall/gjson"
)

// SignificantMagnitude is the inclusive magnitude floor for significance.
const SignificantMagnitude = 4.5

// richProducts are the scientific sub-products that make any event significant.
var richProducts = []string{"moment-tensor", "focal-mechanism"}

// IsSignificant reports whether a persisted record deserves index priority.
// Unparseable raw features are logged and treated as carrying no rich data.
func IsSignificant(rec EarthquakeRecord, logger *slog.Logger) bool {
	if rec.Magnitude >= SignificantMagnitude {
		return true
	}
	return hasRichProducts(rec.ID, rec.RawFeature, logger)
}

func hasRichProducts(id string, raw []byte, logger *slog.Logger) bool {
	if len(raw) == 0 {
		return false
	}
	if !gjson.ValidBytes(raw) {
		if logger != nil {
			logger.Warn("unparseable raw feature, treating as no rich data", "id", id, "bytes", len(raw))
		}
		return false
	}

	products := gjson.GetBytes(raw, "properties.products")
	if !products.IsObject() {
		return false
	}
	for _, name := range richProducts {
		if products.Get(gjson.Escape(name)).Exists() {
			return true
		}
	}
	return false
}
