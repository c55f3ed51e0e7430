package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/solalog/solalog-server/internal/accrual"
	"github.com/solalog/solalog-server/internal/auth"
	"github.com/solalog/solalog-server/internal/config"
	"github.com/solalog/solalog-server/internal/resilience"
	"github.com/solalog/solalog-server/internal/station"
	"github.com/solalog/solalog-server/internal/store"
	"github.com/solalog/solalog-server/pkg/openweather"
)

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		return store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

func initStations(c *config.Config) (*station.Index, error) {
	stations, err := station.LoadFile(c.Accrual.StationsFile)
	if err != nil {
		return nil, err
	}
	idx := station.NewIndex(stations, c.Accrual.StationRadiusMeters)
	zap.L().Info("stations loaded",
		zap.Int("count", idx.Len()),
		zap.Float64("radius_m", idx.Radius()),
	)
	return idx, nil
}

func initWeather(c *config.Config) *openweather.Client {
	w := c.Weather
	retry := resilience.NewRetryPolicy(w.Retry.MaxAttempts, w.Retry.InitialBackoffMs, w.Retry.MaxBackoffMs)
	retry.OnRetry = resilience.LogRetry("openweather")

	return openweather.NewClient(w.APIKey,
		openweather.WithBaseURL(w.BaseURL),
		openweather.WithTimeout(time.Duration(w.TimeoutSecs)*time.Second),
		openweather.WithRateLimit(w.RateLimitRPS),
		openweather.WithRetryPolicy(retry),
		openweather.WithCircuitBreaker(resilience.NewCircuitBreaker("openweather",
			w.Breaker.FailureThreshold,
			time.Duration(w.Breaker.ResetTimeoutSecs)*time.Second,
		)),
	)
}

func initIssuer(c *config.Config) (*auth.Issuer, error) {
	return auth.NewIssuer(c.Auth.JWTSecret, time.Duration(c.Auth.TokenTTLHours)*time.Hour)
}

func initService(c *config.Config, st store.Store, wx accrual.WeatherLookup) (*accrual.Service, error) {
	idx, err := initStations(c)
	if err != nil {
		return nil, err
	}
	return accrual.NewService(st, idx, wx,
		accrual.WithMissCooldown(c.Accrual.MissCooldown()),
		accrual.WithTxTimeout(c.Accrual.TxTimeout()),
	), nil
}
