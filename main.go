package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"LessonBoard/internal/config"
	"LessonBoard/internal/console"
	"LessonBoard/internal/export"
	boardnet "LessonBoard/internal/net"
	"LessonBoard/internal/session"
	"LessonBoard/internal/state"
	"LessonBoard/internal/storage"
)

const usage = `usage:
  lessonboard [serve] [flags]          run the room relay hub
  lessonboard join [flags] [link]      join a room from the console
  lessonboard localboard://host:port/room
  lessonboard export [flags] <file.png|file.pdf>`

func main() {
	if err := mainInner(os.Args[1:]); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner(args []string) error {
	mode := "serve"
	if len(args) > 0 {
		switch {
		case strings.HasPrefix(args[0], boardnet.LinkScheme):
			mode = "join"
		case !strings.HasPrefix(args[0], "-"):
			mode, args = args[0], args[1:]
		}
	}
	switch mode {
	case "serve":
		return runServe(args)
	case "join":
		return runJoin(args)
	case "export":
		return runExport(args)
	case "help":
		fmt.Println(usage)
		return nil
	}
	return fmt.Errorf("unknown mode %q\n%s", mode, usage)
}

// setup loads the config file named by -config and installs the logger.
func setup(fs *flag.FlagSet, args []string) (config.Config, error) {
	path := fs.String("config", "lessonboard.toml", "path to the TOML config file")
	level := fs.String("log-level", "", "override log.level")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return config.Config{}, err
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	log, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(log)
	return cfg, nil
}

// visited calls fn for each flag set on the command line.
func visited(fs *flag.FlagSet, fn func(name string)) {
	fs.Visit(func(f *flag.Flag) { fn(f.Name) })
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "the address to listen on")
	database := fs.String("db", "", "the sqlite database file")
	advertise := fs.Bool("advertise", false, "announce the hub over mDNS")
	room := fs.String("room", "", "room to put in the share link")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	visited(fs, func(name string) {
		switch name {
		case "addr":
			cfg.Server.Addr = *addr
		case "db":
			cfg.Server.Database = *database
		case "advertise":
			cfg.Server.Advertise = *advertise
		case "room":
			cfg.Participant.Room = *room
		}
	})

	slog.Info("Opening database", "path", cfg.Server.Database)
	store, err := storage.OpenSQLStore(cfg.Server.Database, slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	return newHubServer(cfg, store).run()
}

// hubServer couples the http server with its optional mDNS announcement.
type hubServer struct {
	cfg  config.Config
	hub  *boardnet.Hub
	http *http.Server
}

func newHubServer(cfg config.Config, store boardnet.StrokeStore) *hubServer {
	hub := boardnet.NewHub(store, slog.Default())
	return &hubServer{cfg: cfg, hub: hub, http: &http.Server{Addr: cfg.Server.Addr, Handler: hub.Handler()}}
}

func (s *hubServer) run() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	slog.Info("Hub listening", "addr", ln.Addr().String())
	fmt.Println("Share link:", boardnet.ShareLink(boardnet.OutgoingIP(), port, s.cfg.Participant.Room))

	if s.cfg.Server.Advertise {
		mdnsServer, err := boardnet.Advertise(s.cfg.Server.Instance, port, s.cfg.Participant.Room)
		if err != nil {
			slog.Error("failed to advertise hub", "err", err)
		} else {
			defer func() { _ = mdnsServer.Shutdown() }()
		}
	}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	_ = s.http.Close()
	s.hub.Close()
	wg.Wait()
	return nil
}

func runJoin(args []string) error {
	fs := flag.NewFlagSet("join", flag.ContinueOnError)
	server := fs.String("server", "", "hub base url, e.g. http://10.0.0.2:8888")
	room := fs.String("room", "", "room to join")
	id := fs.String("id", "", "participant id")
	dataDir := fs.String("data", "", "directory for the local board snapshot")
	solo := fs.Bool("solo", false, "draw offline without a hub")
	discover := fs.Duration("discover", 0, "browse the LAN for a hub for this long")

	var link string
	if len(args) > 0 && strings.HasPrefix(args[0], boardnet.LinkScheme) {
		link, args = args[0], args[1:]
	}
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if link == "" && fs.NArg() > 0 {
		link = fs.Arg(0)
	}
	if link != "" {
		serverURL, linkRoom, err := boardnet.ParseShareLink(link)
		if err != nil {
			return err
		}
		cfg.Participant.ServerURL = serverURL
		if linkRoom != "" {
			cfg.Participant.Room = linkRoom
		}
	}
	visited(fs, func(name string) {
		switch name {
		case "server":
			cfg.Participant.ServerURL = *server
		case "room":
			cfg.Participant.Room = *room
		case "id":
			cfg.Participant.ID = *id
		case "data":
			cfg.Participant.DataDir = *dataDir
		}
	})
	if *discover > 0 && !*solo {
		hosts, err := boardnet.Browse(*discover)
		if err != nil {
			return err
		}
		if len(hosts) == 0 {
			return errors.New("no hub found on the local network")
		}
		slog.Info("Discovered hub", "instance", hosts[0].Instance, "addr", hosts[0].Addr)
		cfg.Participant.ServerURL = hosts[0].URL()
		if hosts[0].Room != "" && *room == "" {
			cfg.Participant.Room = hosts[0].Room
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kv, err := storage.NewFileKV(cfg.Participant.DataDir)
	if err != nil {
		return err
	}
	opts := session.Options{
		Room:             cfg.Participant.Room,
		Participant:      cfg.Participant.ID,
		KV:               kv,
		DeltaInterval:    cfg.Sync.DeltaInterval,
		AutosaveInterval: cfg.Sync.AutosaveInterval,
		HydrateTimeout:   cfg.Sync.HydrateTimeout,
		Logger:           slog.Default(),
	}
	status := func() string { return "offline (solo)" }
	wg := new(sync.WaitGroup)
	defer func() {
		cancel()
		wg.Wait()
	}()
	if *solo {
		opts.Transport = boardnet.NewBus()
	} else {
		client, err := boardnet.NewClient(cfg.Participant.ServerURL, boardnet.ClientOptions{
			ReconnectInterval: cfg.Sync.ReconnectInterval,
			Logger:            slog.Default(),
		})
		if err != nil {
			return err
		}
		hydrator, err := boardnet.NewHydrationClient(cfg.Participant.ServerURL, &http.Client{Timeout: cfg.Sync.HydrateTimeout})
		if err != nil {
			return err
		}
		opts.Transport, opts.Hydrator = client, hydrator
		status = func() string {
			if client.Connected() {
				return "connected to " + cfg.Participant.ServerURL
			}
			return "reconnecting to " + cfg.Participant.ServerURL
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = client.Run(ctx)
		}()
	}

	sess, err := session.New(opts)
	if err != nil {
		return err
	}
	if err := sess.Mount(ctx); err != nil {
		return err
	}
	defer sess.Close()
	slog.Info("Joined room", "room", cfg.Participant.Room, "participant", cfg.Participant.ID)

	done := make(chan error, 1)
	go func() {
		done <- console.New(sess.Engine(), os.Stdout, status).Run(os.Stdin)
	}()
	select {
	case err = <-done:
	case <-ctx.Done():
		slog.Info("Signal caught, leaving room")
	}
	return err
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	server := fs.String("server", "", "read the board from this hub instead of the local snapshot")
	room := fs.String("room", "", "room to export")
	dataDir := fs.String("data", "", "directory of the local board snapshot")
	timeout := fs.Duration("timeout", 10*time.Second, "hub request timeout")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New(usage)
	}
	out := fs.Arg(0)
	visited(fs, func(name string) {
		switch name {
		case "room":
			cfg.Participant.Room = *room
		case "data":
			cfg.Participant.DataDir = *dataDir
		}
	})

	if *server != "" {
		hc, err := boardnet.NewHydrationClient(*server, nil)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		strokes, err := hc.FetchStrokes(ctx, cfg.Participant.Room)
		if err != nil {
			return err
		}
		return writeExport(out, cfg.Participant.Room, strokes)
	}
	kv, err := storage.NewFileKV(cfg.Participant.DataDir)
	if err != nil {
		return err
	}
	return writeExport(out, cfg.Participant.Room, storage.NewSnapshots(kv, cfg.Participant.Room, slog.Default()).Load())
}

func writeExport(path, room string, strokes []state.Stroke) error {
	if err := export.File(path, strokes); err != nil {
		return err
	}
	slog.Info("Exported board", "room", room, "strokes", len(strokes), "path", path)
	return nil
}
