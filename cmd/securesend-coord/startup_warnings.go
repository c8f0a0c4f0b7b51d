package main

import (
	"log/slog"
	"slices"
	"time"

	"github.com/securesend/coord/internal/config"
)

// Offers outliving this make stale links resolvable for longer than a
// browser tab is likely to stay open.
const longOfferTTL = time.Hour

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Mode == config.ModeProd && cfg.OfferStore == config.OfferStoreMemory {
		logger.Warn("startup warning: OFFER_STORE=memory while --mode=prod (offers are lost on restart and not shared between instances)",
			"warning_code", "memory_offer_store_in_prod",
			"offer_store", cfg.OfferStore,
			"mode", cfg.Mode,
		)
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.OfferTTL > longOfferTTL {
		logger.Warn("startup security warning: OFFER_TTL is very large (transfer links stay resolvable long after the sender left)",
			"warning_code", "offer_ttl_large",
			"offer_ttl", cfg.OfferTTL,
			"mode", cfg.Mode,
		)
	}

	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("startup warning: ICE server configuration is invalid; /webrtc/ice and /readyz will report it",
			"warning_code", "ice_config_invalid",
			"err", err,
			"mode", cfg.Mode,
		)
	}
}
