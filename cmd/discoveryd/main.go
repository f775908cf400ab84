// Command discoveryd runs a Discovery Server: the DDB core wired to the
// in-memory demo transport, the server routine, and the admin HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/meshdisco/discoveryd/internal/ddb"
	"github.com/meshdisco/discoveryd/internal/demotransport"
	"github.com/meshdisco/discoveryd/internal/listener"
	"github.com/meshdisco/discoveryd/internal/routine"
	"github.com/meshdisco/discoveryd/pkg/admin"
	"github.com/meshdisco/discoveryd/pkg/flags"
)

// upstreamList accumulates repeated -upstream flag occurrences.
type upstreamList []string

func (u *upstreamList) String() string { return strings.Join(*u, ",") }

func (u *upstreamList) Set(value string) error {
	*u = append(*u, value)
	return nil
}

func main() {
	cmd := flag.NewFlagSet("discoveryd", flag.ExitOnError)

	serverGuidPrefix := cmd.String("server-guid-prefix", "", "hex-encoded 12-byte GUID prefix identifying this server (required)")
	var upstream upstreamList
	cmd.Var(&upstream, "upstream", "hex-encoded GUID prefix of an upstream server to relay to; repeatable")
	routinePeriod := cmd.Duration("routine-period", 200*time.Millisecond, "server routine tick period")
	addr := cmd.String("addr", ":8087", "address the demo transport's ingest HTTP server listens on")
	metricsAddr := cmd.String("metrics-addr", ":9990", "address to serve scrapable metrics and health checks on")
	enablePprof := cmd.Bool("enable-pprof", false, "enable pprof endpoints on the admin server")

	flags.ConfigureAndParse(cmd, os.Args[1:])

	if *serverGuidPrefix == "" {
		log.Fatal("-server-guid-prefix is required")
	}
	prefix, err := ddb.ParseGuidPrefix(*serverGuidPrefix)
	if err != nil {
		log.Fatalf("invalid -server-guid-prefix: %s", err)
	}

	upstreamPrefixes := make([]ddb.GuidPrefix, 0, len(upstream))
	for _, u := range upstream {
		p, err := ddb.ParseGuidPrefix(u)
		if err != nil {
			log.Fatalf("invalid -upstream %q: %s", u, err)
		}
		upstreamPrefixes = append(upstreamPrefixes, p)
	}

	ready := false
	adminServer := admin.NewServer(*metricsAddr, *enablePprof, &ready)
	go func() {
		log.Infof("starting admin server on %s", *metricsAddr)
		if err := adminServer.ListenAndServe(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				log.Infof("admin server closed (%s)", *metricsAddr)
			} else {
				log.Errorf("admin server error (%s): %s", *metricsAddr, err)
			}
		}
	}()

	db := ddb.New(prefix, upstreamPrefixes,
		ddb.WithLogger(log.WithField("component", "ddb")),
		ddb.WithRecorder(ddb.NewRecorder(prometheus.DefaultRegisterer)),
	)
	transport := demotransport.New(db)

	r := routine.New(db, transport, *routinePeriod, routine.WithLogger(log.WithField("component", "server-routine")))
	l := listener.New(db, demotransport.ParticipantCodec{}, demotransport.TopicCodec{}, transport.ReaderPool(), r, transport)

	ingest := demotransport.NewIngestServer(transport, l)
	ingestServer := ingest.NewHTTPServer(*addr)
	go func() {
		log.Infof("starting ingest server on %s", *addr)
		if err := ingestServer.ListenAndServe(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				log.Infof("ingest server closed (%s)", *addr)
			} else {
				log.Errorf("ingest server error (%s): %s", *addr, err)
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ready = true
	log.Infof("discoveryd running as %s", prefix)

	<-stop

	log.Info("shutting down")
	cancel()
	ingestServer.Shutdown(context.Background())
	adminServer.Shutdown(context.Background())
}
