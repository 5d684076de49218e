package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/starford/photoattr/internal"
	"github.com/starford/photoattr/internal/annotate"
	"github.com/starford/photoattr/internal/attrs"
	"github.com/starford/photoattr/internal/attrservice"
	pkgconfig "github.com/starford/photoattr/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// The flag wins over the file.
	if root := cmd.String("root"); root != "" {
		cfg.Catalog.Root = root
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(cmd.Root().ErrWriter))
}

// withService opens the configured catalog for a one-shot command. Logs go
// to stderr so stdout carries only command output.
func withService(cmd *cli.Command, fn func(svc *attrservice.Service, out io.Writer) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	errOut := cmd.Root().ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}
	c, err := internal.Open(cfg, internal.NewLogger(cfg, errOut))
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c.Service, writer(cmd))
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func reader(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}

func imageArg(cmd *cli.Command) (string, error) {
	image := cmd.Args().First()
	if image == "" {
		return "", errors.New("missing IMAGE argument")
	}
	return image, nil
}

func scan(ctx context.Context, cmd *cli.Command) error {
	return withService(cmd, func(svc *attrservice.Service, out io.Writer) error {
		images, err := svc.Images(ctx, dirArg(cmd))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, img := range images {
			d, err := svc.GetAttributes(ctx, img.Path)
			if err != nil {
				return err
			}
			state := color.YellowString("no sidecar")
			if d.Exists {
				state = color.GreenString("sidecar")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				img.Path, humanize.Bytes(uint64(img.Size)), humanize.Time(img.UpdatedAt), state)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d images\n", len(images))
		return nil
	})
}

func dirArg(cmd *cli.Command) string {
	if dir := cmd.Args().First(); dir != "" {
		return dir
	}
	return "."
}

func show(ctx context.Context, cmd *cli.Command) error {
	image, err := imageArg(cmd)
	if err != nil {
		return err
	}
	return withService(cmd, func(svc *attrservice.Service, out io.Writer) error {
		d, err := svc.GetAttributes(ctx, image)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			enc := json.NewEncoder(out)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}
		printDetail(out, d)
		return nil
	})
}

func set(ctx context.Context, cmd *cli.Command) error {
	image, err := imageArg(cmd)
	if err != nil {
		return err
	}
	update, err := attrs.ParseAssignments(cmd.Args().Tail())
	if err != nil {
		return err
	}
	return withService(cmd, func(svc *attrservice.Service, out io.Writer) error {
		d, err := svc.UpdateAttributes(ctx, image, update, "")
		if err != nil {
			return err
		}
		printDetail(out, d)
		return nil
	})
}

func clearImage(ctx context.Context, cmd *cli.Command) error {
	image, err := imageArg(cmd)
	if err != nil {
		return err
	}
	return withService(cmd, func(svc *attrservice.Service, out io.Writer) error {
		d, err := svc.ClearAttributes(ctx, image, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "cleared %s (%s)\n", d.Image, d.Sidecar)
		return nil
	})
}

func suggest(ctx context.Context, cmd *cli.Command) error {
	image, err := imageArg(cmd)
	if err != nil {
		return err
	}
	return withService(cmd, func(svc *attrservice.Service, out io.Writer) error {
		if cmd.Bool("apply") {
			d, err := svc.ApplySuggestions(ctx, image)
			if err != nil {
				return err
			}
			printDetail(out, d)
			return nil
		}
		sug, err := svc.Suggest(ctx, image)
		if err != nil {
			return err
		}
		if len(sug.Suggested) == 0 {
			fmt.Fprintln(out, "no EXIF suggestions")
			return nil
		}
		for _, row := range sug.Suggested.Rows() {
			if row.Value == "" {
				continue
			}
			note := ""
			if _, ok := sug.Applicable[row.Key]; !ok {
				note = "  (already set)"
			}
			fmt.Fprintf(out, "%s: %s%s\n", row.Key, row.Value, note)
		}
		return nil
	})
}

func annotateDir(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	autoSave := cmd.Bool("autosave") || cfg.Catalog.AutoSave
	return withService(cmd, func(svc *attrservice.Service, out io.Writer) error {
		files, err := svc.Images(ctx, dirArg(cmd))
		if err != nil {
			return err
		}
		images := make([]string, len(files))
		for i, f := range files {
			images[i] = f.Path
		}
		return annotate.Run(ctx, annotate.ServiceSidecars(ctx, svc), images, autoSave, reader(cmd), out)
	})
}

func reindex(ctx context.Context, cmd *cli.Command) error {
	return withService(cmd, func(svc *attrservice.Service, out io.Writer) error {
		if err := svc.Sync(ctx); err != nil {
			return err
		}
		st, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "indexed %d images, %d with sidecar, %d annotated\n",
			st.Images, st.WithSidecar, st.Annotated)
		return nil
	})
}

func printDetail(out io.Writer, d *attrservice.Detail) {
	fmt.Fprintf(out, "%s (%s)\n", d.Image, d.Sidecar)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, row := range d.Rows {
		fmt.Fprintf(tw, "  %s\t%s\n", row.Key, row.Value)
	}
	_ = tw.Flush()
	for _, k := range d.Extras {
		fmt.Fprintf(out, "  %s (unknown key, kept)\n", k)
	}
}
