package config

import (
    "testing"
    "time"
)

func validConfig() Config {
    return Config{
        Database: DatabaseConfig{Host: "localhost", Port: 3306, Username: "u", Database: "d"},
        Redis:    RedisConfig{Host: "localhost", Port: 6379},
        Allocator: AllocatorConfig{
            ReservationTTL:          5 * time.Minute,
            AgentRateLimitPerMinute: 10,
            CandidateScanLimit:      50,
            DefaultHourlyCap:        20,
            DefaultDailyCap:         200,
            RequestDeadline:         2 * time.Second,
        },
        API:        APIConfig{Enabled: true, Port: 8082},
        Monitoring: MonitoringConfig{Metrics: MetricsConfig{Enabled: true, Port: 9090}, Health: HealthConfig{Enabled: true, Port: 8080}},
    }
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
    c := validConfig()
    if err := c.Validate(); err != nil {
        t.Fatalf("unexpected validation error: %v", err)
    }
}

func TestValidateRejectsHourlyCapAboveDailyCap(t *testing.T) {
    c := validConfig()
    c.Allocator.DefaultHourlyCap = 500
    c.Allocator.DefaultDailyCap = 100
    if err := c.Validate(); err == nil {
        t.Fatal("expected validation error when hourly cap exceeds daily cap")
    }
}

func TestValidateRejectsZeroReservationTTL(t *testing.T) {
    c := validConfig()
    c.Allocator.ReservationTTL = 0
    if err := c.Validate(); err == nil {
        t.Fatal("expected validation error for zero reservation TTL")
    }
}

func TestValidateRejectsMissingDatabaseHost(t *testing.T) {
    c := validConfig()
    c.Database.Host = ""
    if err := c.Validate(); err == nil {
        t.Fatal("expected validation error for missing database host")
    }
}

func TestGetDSNIncludesCharsetAndTimezone(t *testing.T) {
    c := DatabaseConfig{Username: "u", Password: "p", Host: "db", Port: 3306, Database: "pool"}
    dsn := c.GetDSN()
    want := "u:p@tcp(db:3306)/pool?charset=utf8mb4&parseTime=true&loc=UTC"
    if dsn != want {
        t.Errorf("got %q, want %q", dsn, want)
    }
}
