/*
Copyright 2026 The SkyServ Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// czar is the SkyServ front-end query coordinator. It accepts user SQL
// over a small HTTP API, plans each query against the partition metadata,
// scatters per-chunk sub-queries to workers and merges their results into
// a table the client shim reads back.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"skyserv.io/skyserv/go/sky/catalog"
	"skyserv.io/skyserv/go/sky/czar"
	"skyserv.io/skyserv/go/sky/log"
	"skyserv.io/skyserv/go/sky/scatter"
	"skyserv.io/skyserv/go/sky/servenv"
	"skyserv.io/skyserv/go/sky/skyerrors"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "czar",
		Short: "SkyServ front-end query coordinator",
		Long: "czar accepts astronomical catalog queries, fans them out per sky chunk\n" +
			"to the worker fleet and merges the partial results into MySQL tables.",
		Args: cobra.NoArgs,
		RunE: run,
	}
	fs := cmd.Flags()
	fs.String("config", "", "config file, read with viper (yaml, json or toml)")
	fs.Int("port", 4040, "port for the status and submit HTTP server")
	fs.String("default-db", "", "default database for unqualified table references")
	fs.StringSlice("metadata-servers", []string{"127.0.0.1:2181"}, "zookeeper servers holding the partition metadata")
	fs.String("metadata-root", "/skyserv", "root path of the partition metadata")
	fs.StringSlice("workers", nil, "worker endpoints; chunks are placed on workers by chunk id")
	fs.Duration("connect-timeout", 5*time.Second, "worker connect timeout")
	fs.String("result-db", "skyserv_results", "database holding result and message tables")
	fs.String("result-socket", "/var/run/mysqld/mysqld.sock", "unix socket of the result mysql server")
	fs.String("result-user", "skyserv", "mysql user for the result database")
	fs.String("result-password", "", "mysql password for the result database")
	fs.Int("max-in-flight-per-query", 8, "concurrent chunk jobs per user query")
	fs.Int("max-in-flight-global", 0, "concurrent chunk jobs across all queries, 0 for unbounded")
	fs.Int("max-attempts", 3, "attempts per chunk job, including the first")
	fs.Int("job-timeout-ms", 600000, "timeout of one chunk job attempt, in milliseconds")
	fs.Int64("merge-buffer-bytes", 16<<20, "max encoded bytes per LOAD DATA statement")
	fs.Float64("spatial-overlap-deg", 0.01667, "near-neighbor overlap when the metadata carries none")
	log.RegisterFlags(fs)
	servenv.RegisterFlags(fs)
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
		log.Infof("loaded config from %s", cfgFile)
	}

	store, err := catalog.NewZKStore(v.GetStringSlice("metadata-servers"), v.GetString("metadata-root"))
	if err != nil {
		return err
	}
	servenv.OnClose(store.Close)
	cache := catalog.NewCache(store)

	db, err := resultPool(v)
	if err != nil {
		return err
	}
	servenv.OnClose(func() { db.Close() })

	workers := v.GetStringSlice("workers")
	resolver := scatter.NewResolver(placeByChunk(workers), time.Minute)
	transport := scatter.NewDialTransport(v.GetDuration("connect-timeout"))

	c := czar.New(czar.Config{
		DefaultDb:           v.GetString("default-db"),
		ResultDb:            v.GetString("result-db"),
		MaxInFlightPerQuery: v.GetInt("max-in-flight-per-query"),
		MaxInFlightGlobal:   v.GetInt("max-in-flight-global"),
		MaxAttempts:         v.GetInt("max-attempts"),
		JobTimeout:          time.Duration(v.GetInt("job-timeout-ms")) * time.Millisecond,
		RetryBackoff:        100 * time.Millisecond,
		MergeBufferBytes:    v.GetInt64("merge-buffer-bytes"),
		SpatialOverlapDeg:   v.GetFloat64("spatial-overlap-deg"),
	}, cache, transport, resolver, db)
	registerAPI(c)

	servenv.Run(v.GetInt("port"))
	return nil
}

// placeByChunk spreads chunks over the worker list by chunk id. A real
// deployment replaces this with placement read from the shared metadata.
func placeByChunk(workers []string) scatter.ResolveFunc {
	return func(ctx context.Context, chunkID int32) (string, error) {
		if len(workers) == 0 {
			return "", skyerrors.New(skyerrors.FailedPrecondition, "no worker endpoints configured")
		}
		return workers[int(uint32(chunkID))%len(workers)], nil
	}
}

func resultPool(v *viper.Viper) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = v.GetString("result-user")
	cfg.Passwd = v.GetString("result-password")
	cfg.Net = "unix"
	cfg.Addr = v.GetString("result-socket")
	cfg.DBName = v.GetString("result-db")
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	// The merger serializes its statements; a small pool is plenty.
	db.SetMaxOpenConns(4)
	return db, nil
}

type submitRequest struct {
	SQL   string            `json:"sql"`
	Hints map[string]string `json:"hints"`
}

type killRequest struct {
	Token    string `json:"token"`
	ClientID string `json:"clientId"`
}

// registerAPI installs the shim-facing endpoints on the default mux,
// served by servenv's listener.
func registerAPI(c *czar.Czar) {
	http.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res := c.SubmitQuery(r.Context(), req.SQL, req.Hints)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			log.Errorf("encoding submit response: %v", err)
		}
	})
	http.HandleFunc("/kill", func(w http.ResponseWriter, r *http.Request) {
		var req killRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		errMsg := ""
		if err := c.KillQuery(req.Token, req.ClientID); err != nil {
			errMsg = err.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"errorMsg": errMsg}); err != nil {
			log.Errorf("encoding kill response: %v", err)
		}
	})
}
