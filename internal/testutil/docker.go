package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// Container is a running throwaway dependency. Close purges it.
type Container struct {
	pool     *dockertest.Pool
	resource *dockertest.Resource
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	return c.pool.Purge(c.resource)
}

func newPool() (*dockertest.Pool, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("could not construct pool: %w", err)
	}
	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to docker: %w", err)
	}
	pool.MaxWait = 2 * time.Minute
	return pool, nil
}

func run(pool *dockertest.Pool, opts *dockertest.RunOptions) (*dockertest.Resource, error) {
	resource, err := pool.RunWithOptions(opts, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, fmt.Errorf("could not start %s: %w", opts.Repository, err)
	}
	_ = resource.Expire(300)
	return resource, nil
}

// StartPostgres runs a postgres container and returns a connected pool.
// The error is non-nil when Docker is unavailable; callers skip their tests.
func StartPostgres() (*sqlx.DB, *Container, error) {
	pool, err := newPool()
	if err != nil {
		return nil, nil, err
	}
	resource, err := run(pool, &dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=tasks",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=tasks_test",
			"listen_addresses = '*'",
		},
	})
	if err != nil {
		return nil, nil, err
	}
	container := &Container{pool: pool, resource: resource}

	dsn := fmt.Sprintf("host=%s port=%s user=tasks password=secret dbname=tasks_test sslmode=disable",
		"localhost", resource.GetPort("5432/tcp"))
	var db *sqlx.DB
	err = pool.Retry(func() error {
		var err error
		db, err = sqlx.Open("postgres", dsn)
		if err != nil {
			return err
		}
		return db.Ping()
	})
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("postgres did not become ready: %w", err)
	}
	return db, container, nil
}

// StartRedis runs a redis container and returns a connected client.
func StartRedis() (*redis.Client, *Container, error) {
	pool, err := newPool()
	if err != nil {
		return nil, nil, err
	}
	resource, err := run(pool, &dockertest.RunOptions{Repository: "redis", Tag: "7-alpine"})
	if err != nil {
		return nil, nil, err
	}
	container := &Container{pool: pool, resource: resource}

	client := redis.NewClient(&redis.Options{Addr: "localhost:" + resource.GetPort("6379/tcp")})
	err = pool.Retry(func() error {
		return client.Ping(context.Background()).Err()
	})
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("redis did not become ready: %w", err)
	}
	return client, container, nil
}
