package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"realmsync.ai/internal/identity"
	"realmsync.ai/internal/persistence/journal"
	"realmsync.ai/internal/persistence/objstore"
	"realmsync.ai/internal/persistence/snapshot"
	"realmsync.ai/internal/protocol"
	"realmsync.ai/internal/server"
	"realmsync.ai/internal/sim/tuning"
	"realmsync.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite activity index")
		noJournal  = flag.Bool("disable_journal", false, "disable the message journal")
		queueSize  = flag.Int("queue", envInt("RS_TASK_QUEUE", 4096), "simulation task queue capacity")
		sendQueue  = flag.Int("send_queue", ws.DefaultQueueSize, "per-connection outbound queue")
		archiveOn  = flag.Bool("archive_manual", true, "copy manual saves into data/archives")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	_ = os.MkdirAll(*dataDir, 0o755)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	ids, err := identity.Load(server.IdentityPath(*dataDir))
	if err != nil {
		logger.Fatalf("load identity: %v", err)
	}

	// Optional: read-model index backend (does not affect the simulation).
	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	mirror, err := openMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("open backup mirror: %v", err)
	}

	cfg := server.Config{
		Tuning:        tune,
		DataDir:       *dataDir,
		Identity:      ids,
		Logger:        logger,
		QueueSize:     *queueSize,
		ArchiveManual: *archiveOn,
	}
	if idx != nil {
		cfg.Index = idx
	}
	if mirror != nil {
		cfg.Mirror = mirror
	}
	if !*noJournal {
		j := journal.New(filepath.Join(*dataDir, "journal"))
		defer j.Close()
		cfg.Journal = j
	}
	srv := server.New(cfg)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(server.SnapshotDir(*dataDir))
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := srv.Restore(snap); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s save_id=%s entities=%d", filepath.Base(snapshotToLoad), snap.Header.SaveID, len(snap.Entities))
	} else {
		srv.Seed()
		logger.Printf("fresh world entities=%d", srv.World().Len())
	}

	hub := ws.NewHub(srv, logger, *sendQueue)
	srv.Attach(hub)

	ctx, cancel := signalContext()
	defer cancel()

	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		if err := srv.Run(ctx); err != nil {
			logger.Printf("simulation stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, srv.Metrics(), hub.Stats(), idx, mirror)
	})

	if envBool("RS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(struct {
				Metrics server.Metrics `json:"metrics"`
				Hub     ws.HubStats    `json:"hub"`
				Backup  objstore.Stats `json:"backup"`
			}{srv.Metrics(), hub.Stats(), mirror.Stats()})
		})
		mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			path, err := srv.RequestSave(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": path})
		})
	} else {
		logger.Printf("admin endpoints disabled (RS_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("RS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", hub.Handler())

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		hub.Broadcast(protocol.New(time.Now(), &protocol.Chat{Text: "SERVER SHUTTING DOWN", Source: server.SourceServer, ID: protocol.NoEntity}))
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = httpSrv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	<-simDone
	// The simulation goroutine has exited, so the world is ours to save.
	if path, err := srv.Save(true); err != nil {
		logger.Printf("final save: %v", err)
	} else {
		logger.Printf("final save path=%s", path)
	}
	mirror.Close()
}

func writeMetrics(rw http.ResponseWriter, m server.Metrics, hs ws.HubStats, idx runtimeIndex, mirror *objstore.Mirror) {
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP realmsync_tick Simulation ticks since start.\n")
	fmt.Fprintf(rw, "# TYPE realmsync_tick counter\n")
	fmt.Fprintf(rw, "realmsync_tick %d\n", m.Tick)

	fmt.Fprintf(rw, "# HELP realmsync_connections Connections that received the entity bootstrap.\n")
	fmt.Fprintf(rw, "# TYPE realmsync_connections gauge\n")
	fmt.Fprintf(rw, "realmsync_connections %d\n", m.Conns)

	fmt.Fprintf(rw, "# HELP realmsync_entities Entities in the world.\n")
	fmt.Fprintf(rw, "# TYPE realmsync_entities gauge\n")
	fmt.Fprintf(rw, "realmsync_entities{kind=%q} %d\n", "all", m.Entities)
	fmt.Fprintf(rw, "realmsync_entities{kind=%q} %d\n", "player", m.Players)

	fmt.Fprintf(rw, "# HELP realmsync_queue_depth Simulation task backlog.\n")
	fmt.Fprintf(rw, "# TYPE realmsync_queue_depth gauge\n")
	fmt.Fprintf(rw, "realmsync_queue_depth %d\n", m.QueueDepth)

	fmt.Fprintf(rw, "# HELP realmsync_mob_kills Mobs killed by players.\n")
	fmt.Fprintf(rw, "# TYPE realmsync_mob_kills gauge\n")
	fmt.Fprintf(rw, "realmsync_mob_kills %d\n", m.Kills)

	fmt.Fprintf(rw, "# HELP realmsync_ws_frames Outbound websocket frames.\n")
	fmt.Fprintf(rw, "# TYPE realmsync_ws_frames counter\n")
	fmt.Fprintf(rw, "realmsync_ws_frames{result=%q} %d\n", "sent", hs.Sent)
	fmt.Fprintf(rw, "realmsync_ws_frames{result=%q} %d\n", "dropped", hs.Dropped)

	if idx != nil {
		st := idx.Stats()
		fmt.Fprintf(rw, "# HELP realmsync_index_queue Index writer queue.\n")
		fmt.Fprintf(rw, "# TYPE realmsync_index_queue gauge\n")
		fmt.Fprintf(rw, "realmsync_index_queue{stat=%q} %d\n", "depth", st.QueueDepth)
		fmt.Fprintf(rw, "realmsync_index_queue{stat=%q} %d\n", "capacity", st.QueueCapacity)
		fmt.Fprintf(rw, "realmsync_index_queue{stat=%q} %d\n", "dropped", st.Dropped)
	}

	if mirror != nil {
		st := mirror.Stats()
		fmt.Fprintf(rw, "# HELP realmsync_backup_uploads Save files mirrored to object storage.\n")
		fmt.Fprintf(rw, "# TYPE realmsync_backup_uploads counter\n")
		fmt.Fprintf(rw, "realmsync_backup_uploads{result=%q} %d\n", "ok", st.Uploaded)
		fmt.Fprintf(rw, "realmsync_backup_uploads{result=%q} %d\n", "failed", st.Failed)
		fmt.Fprintf(rw, "realmsync_backup_uploads{result=%q} %d\n", "dropped", st.Dropped)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
