// Command example-cql demonstrates driving a cluster.Cluster against a
// running node: queries, prepared statements, batches, and concurrent
// use from multiple goroutines, on a repeating ticker.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/nodestore/cql/cluster"
	"github.com/nodestore/cql/frame"
)

const defaultSeed = "127.0.0.1:9042"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func getSeed() string {
	if v := os.Getenv("CQL_SEED"); v != "" {
		return v
	}
	return defaultSeed
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	seed := getSeed()
	c := cluster.New(nil, nil)
	if err := c.ConnectCluster(ctx, seed); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = c.Close() }()
	fmt.Printf("connected to cluster via %s\n", seed)

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for i := 1; ; i++ {
		doQuery(ctx, c, i)
		doPrepared(ctx, c, i)
		doBatch(ctx, c, i)
		doConcurrentQueries(ctx, c, i)

		select {
		case <-ctx.Done():
			fmt.Println("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

func doQuery(ctx context.Context, c *cluster.Cluster, i int) {
	name := fmt.Sprintf("user-%d", i)

	insert := fmt.Sprintf("INSERT INTO keyspace1.users (name, email) VALUES ('%s', '%s@example.com')", name, name)
	if _, err := c.ExecQuery(ctx, insert, frame.ConsistencyOne); err != nil {
		log.Printf("insert: %v", err)
		return
	}

	res, err := c.ExecQuery(ctx, "SELECT COUNT(*) FROM keyspace1.users", frame.ConsistencyOne)
	if err != nil {
		log.Printf("count: %v", err)
		return
	}

	fmt.Printf("[%d] inserted %s (rows in result: %d)\n", i, name, rowCount(res))
}

func doPrepared(ctx context.Context, c *cluster.Cluster, i int) {
	prepared, err := c.PreparedStatement(ctx, "SELECT name FROM keyspace1.users WHERE id = ?")
	if err != nil {
		log.Printf("prepare: %v", err)
		return
	}

	res, err := c.ExecPrepared(ctx, prepared.ID, []frame.Value{frame.Int(int32(i))}, frame.ConsistencyOne)
	if err != nil {
		log.Printf("execute prepared: %v", err)
		return
	}

	fmt.Printf("[%d] prepared lookup returned %d row(s)\n", i, rowCount(res))
}

func doBatch(ctx context.Context, c *cluster.Cluster, i int) {
	name := fmt.Sprintf("batch-user-%d", i)
	queries := []frame.BatchSubQuery{
		{Query: fmt.Sprintf("INSERT INTO keyspace1.users (name, email) VALUES ('%s', '%s@example.com')", name, name)},
		{Query: fmt.Sprintf("UPDATE keyspace1.users SET email = '%s-updated@example.com' WHERE name = '%s'", name, name)},
	}

	if _, err := c.ExecBatch(ctx, frame.BatchLogged, queries, frame.ConsistencyQuorum); err != nil {
		log.Printf("batch: %v", err)
		return
	}
	fmt.Printf("[%d] batch committed %s\n", i, name)
}

func doConcurrentQueries(ctx context.Context, c *cluster.Cluster, i int) {
	var wg sync.WaitGroup
	for g := range 3 {
		wg.Go(func() {
			name := fmt.Sprintf("concurrent-%d-%d", i, g)
			q := fmt.Sprintf("INSERT INTO keyspace1.users (name, email) VALUES ('%s', '%s@example.com')", name, name)
			_, _ = c.ExecQuery(ctx, q, frame.ConsistencyOne)
		})
	}
	wg.Wait()
}

func rowCount(res frame.ResultResponse) int {
	if res.Rows == nil {
		return 0
	}
	return len(res.Rows.Rows)
}
