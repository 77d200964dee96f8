package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticket-geocoder/internal/geo"
	"github.com/sells-group/ticket-geocoder/internal/stage"
	"github.com/sells-group/ticket-geocoder/internal/store"
	"github.com/sells-group/ticket-geocoder/internal/validate"
)

// initStore opens and migrates the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEngine builds the validation engine with the configured thresholds.
func initEngine(centroids *geo.CentroidTable) *validate.Engine {
	return validate.NewEngine(
		validate.LowConfidenceRule{Threshold: cfg.Validate.LowConfidenceThreshold},
		validate.EmergencyConfidenceRule{Threshold: cfg.Validate.EmergencyConfidenceThreshold},
		validate.CityDistanceRule{MaxKM: cfg.Validate.MaxCityDistanceKM, Centroids: centroids},
		validate.FallbackApproachRule{},
		validate.PartialDataRule{},
	)
}

// initRegistry registers the built-in geocoding techniques.
func initRegistry(centroids *geo.CentroidTable) *stage.Registry {
	reg := stage.NewRegistry()
	reg.Register(stage.TechniqueCityCentroid, stage.CentroidFactory(centroids))
	return reg
}
