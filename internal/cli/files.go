package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lazypower/mfu/internal/client"
	"github.com/lazypower/mfu/internal/fsinfo"
	"github.com/lazypower/mfu/internal/mainloop"
	"github.com/lazypower/mfu/internal/mfu"
	"github.com/lazypower/mfu/internal/store"
	"github.com/spf13/cobra"
)

// backend is what the file commands need, served either by a running
// server or by a tracker over the local database.
type backend interface {
	Accessed(path string) error
	Moved(from, to string) error
	Deleted(path string) error
	Files() ([]mfu.File, error)
	Maintain() (decayed, pruned int, err error)
	Close() error
}

type remoteBackend struct{ *client.Client }

func (remoteBackend) Close() error { return nil }

type localBackend struct {
	db      *store.DB
	tracker *mfu.Tracker
}

func (b *localBackend) Accessed(path string) error {
	return b.tracker.NotifyAccessed(context.Background(), mfu.Path(path))
}

func (b *localBackend) Moved(from, to string) error {
	return b.tracker.NotifyMoved(context.Background(), mfu.Path(from), mfu.Path(to))
}

func (b *localBackend) Deleted(path string) error {
	return b.tracker.NotifyDeleted(context.Background(), mfu.Path(path))
}

func (b *localBackend) Files() ([]mfu.File, error) {
	return b.tracker.GetFiles(context.Background())
}

func (b *localBackend) Maintain() (int, int, error) {
	return b.tracker.Maintain(context.Background())
}

func (b *localBackend) Close() error {
	b.tracker.Close()
	return b.db.Close()
}

func openBackend() (backend, error) {
	if c := remote(); c != nil {
		return remoteBackend{c}, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Never run: the CLI registers no observers.
	loop := mainloop.New()
	tracker := mfu.New(db, fsinfo.NewOS(), loop, mfu.Options{
		MaxResults: cfg.Tracker.MaxResults,
		Logger:     newLogger(cfg),
	})
	return &localBackend{db: db, tracker: tracker}, nil
}

// --- access command ---

var accessCmd = &cobra.Command{
	Use:   "access <path>...",
	Short: "Record that files were used",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eachPath(args, func(b backend, key string) error { return b.Accessed(key) })
	},
}

// --- forget command ---

var forgetCmd = &cobra.Command{
	Use:     "forget <path>...",
	Aliases: []string{"delete"},
	Short:   "Stop tracking files (e.g. after deleting them)",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eachPath(args, func(b backend, key string) error { return b.Deleted(key) })
	},
}

func eachPath(args []string, fn func(b backend, key string) error) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	for _, arg := range args {
		key, err := fsinfo.Abs(arg)
		if err != nil {
			return err
		}
		if err := fn(b, key); err != nil {
			return err
		}
	}
	return nil
}

// --- move command ---

var moveCmd = &cobra.Command{
	Use:   "move <from> <to>",
	Short: "Carry a file's score over to its new path",
	Args:  cobra.ExactArgs(2),
	RunE:  runMove,
}

func runMove(cmd *cobra.Command, args []string) error {
	from, err := fsinfo.Abs(args[0])
	if err != nil {
		return err
	}
	to, err := fsinfo.Abs(args[1])
	if err != nil {
		return err
	}

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()
	return b.Moved(from, to)
}

// --- list command ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the most frequently used files",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	files, err := b.Files()
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	printFiles(cmd.OutOrStdout(), files)
	return nil
}

func printFiles(w io.Writer, files []mfu.File) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No files tracked yet.")
		return
	}
	for i, f := range files {
		detail := humanize.IBytes(uint64(f.Size))
		if f.IsDir {
			detail = "dir"
		}
		modified := "unknown"
		if !f.ModTime.IsZero() {
			modified = humanize.Time(f.ModTime)
		}
		fmt.Fprintf(w, "%2d. [%d] %s\n", i+1, f.Count, f.Path)
		fmt.Fprintf(w, "    %s, modified %s\n", detail, modified)
	}
}

// --- watch command ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the ranking every time it changes (needs a running server)",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	c := client.New(flagServer)
	if !c.Healthy() {
		return fmt.Errorf("no server at %s; start one with `mfu serve`", c.URL())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	return c.Stream(ctx, func(files []mfu.File) {
		fmt.Fprintf(out, "## %s\n", time.Now().Format(time.Kitchen))
		printFiles(out, files)
		fmt.Fprintln(out)
	})
}

// --- decay command ---

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run one decay and prune pass now",
	RunE:  runDecay,
}

func runDecay(cmd *cobra.Command, args []string) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	decayed, pruned, err := b.Maintain()
	if err != nil {
		return fmt.Errorf("decay: %w", err)
	}
	fmt.Fprintf(os.Stderr, "decayed %d, pruned %d\n", decayed, pruned)
	return nil
}
