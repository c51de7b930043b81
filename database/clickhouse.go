package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"mabletask/insights/config"
)

type ClickHouseClient struct {
	Conn     clickhouse.Conn
	Location string
}

func NewClickHouseDB(cfg config.Config) (*ClickHouseClient, error) {
	if cfg.WarehouseHost == "" || cfg.WarehouseDatabase == "" {
		return nil, fmt.Errorf("CLICKHOUSE_HOST or CLICKHOUSE_DB_NAME environment variables are not set")
	}

	products := []struct {
		Name    string
		Version string
	}{{Name: "insights-api", Version: "1.0.0"}}
	if cfg.WarehouseLocation != "" {
		products = append(products, struct {
			Name    string
			Version string
		}{Name: "location-" + cfg.WarehouseLocation, Version: "1"})
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.WarehouseHost, cfg.WarehousePort)},
		Auth: clickhouse.Auth{
			Database: cfg.WarehouseDatabase,
			Username: cfg.WarehouseUsername,
			Password: cfg.WarehousePassword,
		},
		ClientInfo: clickhouse.ClientInfo{Products: products},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: time.Second * 5,
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.QueryTimeout.Seconds()),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	slog.Info("connected to ClickHouse warehouse",
		"addr", options.Addr[0], "database", cfg.WarehouseDatabase, "location", cfg.WarehouseLocation)
	return &ClickHouseClient{Conn: conn, Location: cfg.WarehouseLocation}, nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			slog.Error("error closing ClickHouse connection", "error", err)
			return
		}
		slog.Info("ClickHouse connection closed")
	}
}
