package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/bodgit/overlay"
	"github.com/bodgit/overlay/palette"
	"github.com/bodgit/overlay/proxy"
	"github.com/bodgit/overlay/raster"
	"github.com/bodgit/overlay/symbol"
	"github.com/bodgit/overlay/tile"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const defaultDB = "overlay.db"

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	if c.Bool("verbose") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(c *cli.Context) (*overlay.Store, error) {
	return overlay.NewStore(c.String("db"))
}

func findOverlay(store *overlay.Store, ref string) (*overlay.Overlay, error) {
	o, err := store.Overlay(ref)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("no overlay %q", ref)
	}
	return o, nil
}

func serve(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer logger.Sync() //nolint:errcheck

	store, err := openStore(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer store.Close()

	notices := proxy.NewNotices(0)

	opts := overlay.DefaultOptions()
	opts.Workers = c.Int("workers")
	opts.Notify = notices.Add

	service, err := overlay.New(opts, logger.Named("overlay"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer service.Close()

	if st, err := store.Settings(); err == nil {
		service.SetMinify(st.Minify)
	}

	srv, err := proxy.New(c.String("upstream"), service, store, notices, logger.Named("proxy"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	if addr := c.String("statsview"); addr != "" {
		go func() {
			viewer.SetConfiguration(viewer.WithAddr(addr))
			statsview.New().Start()
		}()
		logger.Info("stats server started", zap.String("addr", addr), zap.String("path", "/debug/statsview"))
	}

	server := &http.Server{
		Addr:              c.String("listen"),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", server.Addr), zap.String("upstream", c.String("upstream")))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return cli.Exit(err, 1)
	}

	return nil
}

func add(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	data, err := os.ReadFile(c.Args().Get(1))
	if err != nil {
		return cli.Exit(err, 1)
	}

	store, err := openStore(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer store.Close()

	o, err := store.AddOverlay(overlay.Overlay{
		Name:     c.Args().First(),
		Enabled:  !c.Bool("disabled"),
		PixelURL: c.String("pixel-url"),
		OffsetX:  c.Int("offset-x"),
		OffsetY:  c.Int("offset-y"),
		Opacity:  c.Float64("opacity"),
	}, data)
	if err != nil {
		return cli.Exit(err, 1)
	}

	fmt.Fprintf(c.App.Writer, "%s\t%s\n", o.ID, o.Name)
	return nil
}

func list(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer store.Close()

	overlays, err := store.Overlays()
	if err != nil {
		return cli.Exit(err, 1)
	}
	st, err := store.Settings()
	if err != nil {
		return cli.Exit(err, 1)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tANCHOR\tOFFSET\tOPACITY\t")
	for _, o := range overlays {
		anchor := "-"
		if o.PixelURL != "" {
			a := o.Anchor()
			anchor = fmt.Sprintf("%s+%d,%d", a.Tile, a.Pixel.X, a.Pixel.Y)
		}
		name := o.Name
		if o.ID == st.ActiveOverlay {
			name += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%d,%d\t%g\t\n", o.ID, name, o.Enabled, anchor, o.OffsetX, o.OffsetY, o.Opacity)
	}
	return w.Flush()
}

func remove(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	store, err := openStore(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer store.Close()

	o, err := findOverlay(store, c.Args().First())
	if err != nil {
		return cli.Exit(err, 1)
	}
	if err := store.RemoveOverlay(o.ID); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func setColors(o *overlay.Overlay, keys []string, include bool) error {
	for _, k := range keys {
		col, err := palette.ParseKey(k)
		if err != nil {
			return err
		}
		if o.ColorFilter == nil {
			o.ColorFilter = make(map[string]bool)
		}
		o.ColorFilter[col.Key()] = include
	}
	return nil
}

func set(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	store, err := openStore(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer store.Close()

	o, err := findOverlay(store, c.Args().First())
	if err != nil {
		return cli.Exit(err, 1)
	}

	if c.IsSet("name") {
		o.Name = c.String("name")
	}
	if c.IsSet("enabled") {
		o.Enabled = c.Bool("enabled")
	}
	if c.IsSet("pixel-url") {
		o.PixelURL = c.String("pixel-url")
	}
	if c.IsSet("offset-x") {
		o.OffsetX = c.Int("offset-x")
	}
	if c.IsSet("offset-y") {
		o.OffsetY = c.Int("offset-y")
	}
	if c.IsSet("opacity") {
		o.Opacity = c.Float64("opacity")
	}
	if err := setColors(o, c.StringSlice("include"), true); err != nil {
		return cli.Exit(err, 1)
	}
	if err := setColors(o, c.StringSlice("exclude"), false); err != nil {
		return cli.Exit(err, 1)
	}

	if err := store.UpdateOverlay(o); err != nil {
		return cli.Exit(err, 1)
	}

	if file := c.String("image"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return cli.Exit(err, 1)
		}
		if err := store.SetImage(o.ID, data); err != nil {
			return cli.Exit(err, 1)
		}
	}

	if c.Bool("capture") {
		st, err := store.Settings()
		if err != nil {
			return cli.Exit(err, 1)
		}
		st.ActiveOverlay = o.ID
		st.AutoCapture = true
		if err := store.SaveSettings(st); err != nil {
			return cli.Exit(err, 1)
		}
	}

	return nil
}

func mode(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer store.Close()

	st, err := store.Settings()
	if err != nil {
		return cli.Exit(err, 1)
	}

	if c.NArg() < 1 {
		fmt.Fprintf(c.App.Writer, "mode=%s style=%s scheme=%s autocapture=%t\n", st.Mode, st.Minify.Style, st.Minify.Scheme, st.AutoCapture)
		return nil
	}

	if st.Mode, err = overlay.ParseMode(c.Args().First()); err != nil {
		return cli.Exit(err, 1)
	}
	if c.IsSet("style") {
		if st.Minify.Style, err = overlay.ParseStyle(c.String("style")); err != nil {
			return cli.Exit(err, 1)
		}
	}
	if c.IsSet("scheme") {
		if st.Minify.Scheme, err = symbol.ParseScheme(c.String("scheme")); err != nil {
			return cli.Exit(err, 1)
		}
	}

	if err := store.SaveSettings(st); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func render(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	coord, ok := tile.MatchTilePath(fmt.Sprintf("/files/%s/%s.png", c.Args().Get(0), c.Args().Get(1)))
	if !ok {
		return cli.Exit("invalid tile coordinates", 1)
	}

	logger, err := newLogger(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer logger.Sync() //nolint:errcheck

	body, err := os.ReadFile(c.String("tile"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	store, err := openStore(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer store.Close()

	service, err := overlay.New(overlay.DefaultOptions(), logger)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer service.Close()

	out, changed, err := service.Process(c.Context, store, coord, body)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if !changed {
		logger.Info("no overlays drawn", zap.Stringer("tile", coord))
	}

	output := c.String("output")
	if output == "" {
		output = filepath.Join(filepath.Dir(c.String("tile")), fmt.Sprintf("%d_%d.png", coord.X, coord.Y))
	}
	if err := os.WriteFile(output, out, 0o644); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func convert(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	f, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer f.Close()

	m, err := raster.Decode(f)
	if err != nil {
		return cli.Exit(err, 1)
	}

	out := palette.Convert(m, palette.ConvertOptions{
		MaxColors: c.Int("max-colors"),
		Dither:    c.Bool("dither"),
	})

	w, err := os.Create(c.Args().Get(1))
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer w.Close()

	if err := raster.Encode(w, out); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func stats(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	store, err := openStore(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer store.Close()

	o, err := findOverlay(store, c.Args().First())
	if err != nil {
		return cli.Exit(err, 1)
	}
	if o.Image == nil {
		return cli.Exit("overlay has no image", 1)
	}

	m, err := raster.DecodeBytes(o.Image.Data)
	if err != nil {
		return cli.Exit(err, 1)
	}
	counts := overlay.ColorStats(m)

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	w := tabwriter.NewWriter(c.App.Writer, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "COLOR\tNAME\tPIXELS\tDRAWN\t")
	for _, k := range keys {
		col, err := palette.ParseKey(k)
		if err != nil {
			continue
		}
		name := "-"
		if i, ok := palette.Lookup(col); ok {
			name = palette.All[i].Name
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t\n", col.Hex(), name, counts[k], o.Included(col))
	}
	fmt.Fprintf(w, "\npalette perfect: %t\n", palette.IsPerfect(m))
	return w.Flush()
}

func importTemplate(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	store, err := openStore(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer store.Close()

	i := &overlay.Importer{
		Store: store,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: proxy.NewTransport(),
		},
		MaxBytes: 15 << 20,
	}

	o, err := i.Import(c.Context, c.Args().First())
	if err != nil {
		return cli.Exit(err, 1)
	}
	if o == nil {
		fmt.Fprintln(c.App.Writer, "template already imported")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "%s\t%s\n", o.ID, o.Name)
	return nil
}

func overlayFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "pixel-url",
			Usage: "pixel URL anchoring the top-left corner",
		},
		&cli.IntFlag{
			Name:  "offset-x",
			Usage: "horizontal adjustment in pixels",
		},
		&cli.IntFlag{
			Name:  "offset-y",
			Usage: "vertical adjustment in pixels",
		},
		&cli.Float64Flag{
			Name:  "opacity",
			Value: 0.7,
			Usage: "opacity between 0 and 1",
		},
	}
}

func main() {
	app := cli.NewApp()

	app.Name = "overlay"
	app.Usage = "Wplace tile overlay proxy"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"OVERLAY_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to database",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "serve",
			Usage: "Run the overlay proxy",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "listen",
					EnvVars: []string{"OVERLAY_LISTEN"},
					Value:   "127.0.0.1:8080",
					Usage:   "address to listen on",
				},
				&cli.StringFlag{
					Name:    "upstream",
					EnvVars: []string{"OVERLAY_UPSTREAM"},
					Value:   tile.DefaultBackend,
					Usage:   "game backend to proxy",
				},
				&cli.IntFlag{
					Name:  "workers",
					Value: overlay.DefaultOptions().Workers,
					Usage: "overlays rendered concurrently per tile",
				},
				&cli.StringFlag{
					Name:  "statsview",
					Usage: "address for the runtime statistics server",
				},
			},
			Action: serve,
		},
		{
			Name:      "add",
			Usage:     "Add an overlay",
			ArgsUsage: "NAME FILE",
			Flags: append(overlayFlags(), &cli.BoolFlag{
				Name:  "disabled",
				Usage: "add the overlay disabled",
			}),
			Action: add,
		},
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Usage:   "List overlays",
			Action:  list,
		},
		{
			Name:      "remove",
			Aliases:   []string{"rm"},
			Usage:     "Remove an overlay",
			ArgsUsage: "OVERLAY",
			Action:    remove,
		},
		{
			Name:      "set",
			Usage:     "Change an overlay",
			ArgsUsage: "OVERLAY",
			Flags: append(overlayFlags(),
				&cli.StringFlag{
					Name:  "name",
					Usage: "rename the overlay",
				},
				&cli.BoolFlag{
					Name:  "enabled",
					Usage: "enable or disable the overlay",
				},
				&cli.StringFlag{
					Name:  "image",
					Usage: "replace the image",
				},
				&cli.StringSliceFlag{
					Name:  "include",
					Usage: "draw the color with `R,G,B`",
				},
				&cli.StringSliceFlag{
					Name:  "exclude",
					Usage: "skip the color with `R,G,B`",
				},
				&cli.BoolFlag{
					Name:  "capture",
					Usage: "anchor at the next pixel clicked in the game",
				},
			),
			Action: set,
		},
		{
			Name:      "mode",
			Usage:     "Show or change the render mode",
			ArgsUsage: "[behind|above|minify|original]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "style",
					Usage: "minify style, dots or symbols",
				},
				&cli.StringFlag{
					Name:  "scheme",
					Usage: "symbol scheme, symbols, letters or numbers",
				},
			},
			Action: mode,
		},
		{
			Name:      "render",
			Usage:     "Draw the overlays onto a saved tile",
			ArgsUsage: "X Y",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tile",
					Required: true,
					Usage:    "original tile image",
				},
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "output file",
				},
			},
			Action: render,
		},
		{
			Name:      "convert",
			Usage:     "Recolor an image to the game palette",
			ArgsUsage: "INPUT OUTPUT",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "max-colors",
					Usage: "reduce to at most this many colors first",
				},
				&cli.BoolFlag{
					Name:  "dither",
					Usage: "use Floyd-Steinberg dithering",
				},
			},
			Action: convert,
		},
		{
			Name:      "stats",
			Usage:     "Show the colors used by an overlay",
			ArgsUsage: "OVERLAY",
			Action:    stats,
		},
		{
			Name:      "import-template",
			Usage:     "Add an overlay from a template URL",
			ArgsUsage: "URL",
			Action:    importTemplate,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
