package services

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/filmtaste/internal/config"
	"github.com/temcen/filmtaste/internal/database"
)

type HealthCheck func(ctx context.Context) error

// HealthDetail reports informational stats that do not affect the status.
type HealthDetail func() map[string]interface{}

type HealthService struct {
	config *config.Config
	logger *logrus.Logger
	db     *database.Database

	critical    map[string]HealthCheck
	nonCritical map[string]HealthCheck
	details     map[string]HealthDetail
	stop        chan struct{}

	// Prometheus metrics
	healthCheckStatus   *prometheus.GaugeVec
	lastHealthCheck     *prometheus.GaugeVec
	systemMetrics       *prometheus.GaugeVec
	dbConnectionMetrics *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`

	Details map[string]map[string]interface{} `json:"details,omitempty"`
}

// NewHealthService checks whichever backends db has connected. PostgreSQL is
// critical; Redis and Neo4j only degrade the service.
func NewHealthService(cfg *config.Config, logger *logrus.Logger, db *database.Database) *HealthService {
	hs := &HealthService{
		config:      cfg,
		logger:      logger,
		db:          db,
		critical:    make(map[string]HealthCheck),
		nonCritical: make(map[string]HealthCheck),
		details:     make(map[string]HealthDetail),
		stop:        make(chan struct{}),
	}

	if db != nil {
		if db.PG != nil {
			hs.critical["postgresql"] = func(ctx context.Context) error { return db.PG.Ping(ctx) }
		}
		if db.Redis != nil {
			hs.nonCritical["redis"] = func(ctx context.Context) error { return db.Redis.Ping(ctx).Err() }
		}
		if db.Neo4j != nil {
			hs.nonCritical["neo4j"] = func(ctx context.Context) error { return db.Neo4j.VerifyConnectivity(ctx) }
		}
	}

	hs.healthCheckStatus = registerCollector(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"}), "health_check_status", logger)

	hs.lastHealthCheck = registerCollector(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_timestamp",
		Help: "Timestamp of last health check",
	}, []string{"service"}), "health_check_timestamp", logger)

	hs.systemMetrics = registerCollector(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_info",
		Help: "System information metrics",
	}, []string{"metric_type"}), "system_info", logger)

	hs.dbConnectionMetrics = registerCollector(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "database_connection_pool_usage",
		Help: "Database connection pool usage percentage",
	}, []string{"database", "state"}), "database_connection_pool_usage", logger)

	return hs
}

// AddCheck registers an extra dependency check.
func (s *HealthService) AddCheck(name string, critical bool, check HealthCheck) {
	if critical {
		s.critical[name] = check
	} else {
		s.nonCritical[name] = check
	}
}

// AddDetail attaches stats reported under details.<name>.
func (s *HealthService) AddDetail(name string, detail HealthDetail) {
	s.details[name] = detail
}

// Start begins background collection of runtime and pool metrics.
func (s *HealthService) Start() {
	go s.collectSystemMetrics()
	go s.collectDatabaseMetrics()
}

func (s *HealthService) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *HealthService) CheckHealth() *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	allCriticalHealthy := true
	for _, name := range sortedChecks(s.critical) {
		if err := s.run(s.critical[name]); err != nil {
			status.Services[name] = "unhealthy"
			status.Critical = append(status.Critical, name)
			allCriticalHealthy = false
			s.logger.WithError(err).Errorf("Critical service %s is unhealthy", name)
			s.UpdateHealthMetrics(name, false)
		} else {
			status.Services[name] = "healthy"
			s.UpdateHealthMetrics(name, true)
		}
	}

	for _, name := range sortedChecks(s.nonCritical) {
		if err := s.run(s.nonCritical[name]); err != nil {
			status.Services[name] = "unhealthy"
			status.NonCritical = append(status.NonCritical, name)
			s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", name)
			s.UpdateHealthMetrics(name, false)
		} else {
			status.Services[name] = "healthy"
			s.UpdateHealthMetrics(name, true)
		}
	}

	if len(s.details) > 0 {
		status.Details = make(map[string]map[string]interface{}, len(s.details))
		for name, detail := range s.details {
			status.Details[name] = detail()
		}
	}

	switch {
	case !allCriticalHealthy:
		status.Status = "unhealthy"
	case len(status.NonCritical) > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}

	return status
}

func (s *HealthService) run(check HealthCheck) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return check(ctx)
}

func sortedChecks(checks map[string]HealthCheck) []string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// collectSystemMetrics collects system-level metrics
func (s *HealthService) collectSystemMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var memStats runtime.MemStats

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		runtime.ReadMemStats(&memStats)

		s.systemMetrics.WithLabelValues("memory_alloc_bytes").Set(float64(memStats.Alloc))
		s.systemMetrics.WithLabelValues("memory_sys_bytes").Set(float64(memStats.Sys))
		s.systemMetrics.WithLabelValues("goroutines_count").Set(float64(runtime.NumGoroutine()))
		s.systemMetrics.WithLabelValues("gc_runs_total").Set(float64(memStats.NumGC))

		// Record GC pause time
		lastPause := memStats.PauseNs[(memStats.NumGC+255)%256]
		s.systemMetrics.WithLabelValues("gc_pause_ns").Set(float64(lastPause))
	}
}

// collectDatabaseMetrics collects database connection metrics
func (s *HealthService) collectDatabaseMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if s.db == nil || s.db.PG == nil {
			continue
		}
		stats := s.db.PG.Stat()

		s.dbConnectionMetrics.WithLabelValues("postgresql", "acquired_conns").Set(float64(stats.AcquiredConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "constructing_conns").Set(float64(stats.ConstructingConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "idle_conns").Set(float64(stats.IdleConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "max_conns").Set(float64(stats.MaxConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "total_conns").Set(float64(stats.TotalConns()))

		if stats.MaxConns() > 0 {
			usage := float64(stats.AcquiredConns()) / float64(stats.MaxConns()) * 100
			s.dbConnectionMetrics.WithLabelValues("postgresql", "usage_percent").Set(usage)
		}
	}
}

// UpdateHealthMetrics updates health check metrics
func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}
