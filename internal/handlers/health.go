package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"ytgate/internal/cache"
	"ytgate/internal/config"
	"ytgate/internal/quota"
)

var startTime = time.Now()

// HealthCheck returns a minimal health response without exposing
// system details
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// HealthCheckDetailed returns uptime, mode and quota/cache summaries
func HealthCheckDetailed(envCfg *config.EnvConfig, ledger *quota.Ledger, ch *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"uptime":    time.Since(startTime).Seconds(),
			"mode":      envCfg.Env,
		}

		if global, err := ledger.GlobalStatus(); err == nil {
			body["globalQuota"] = global
		}
		if stats, err := ch.Stats(); err == nil {
			body["cache"] = gin.H{
				"count":            stats.Count,
				"approximateBytes": stats.ApproximateBytes,
			}
		}

		c.JSON(200, body)
	}
}
