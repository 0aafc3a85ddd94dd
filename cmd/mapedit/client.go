package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"

	"github.com/GrainArc/MapEdit/apiclient"
	"github.com/GrainArc/MapEdit/config"
	"github.com/GrainArc/MapEdit/logger"
	"github.com/GrainArc/MapEdit/panels"
	"github.com/GrainArc/MapEdit/syncer"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	featureName string
	featureWKT  string
	moveDX      float64
	moveDY      float64
)

func init() {
	createCmd.Flags().StringVar(&featureWKT, "wkt", "", "geometry in lon/lat WKT")
	createCmd.Flags().StringVar(&featureName, "name", "", "feature name")
	updateCmd.Flags().StringVar(&featureWKT, "wkt", "", "geometry in lon/lat WKT")
	updateCmd.Flags().StringVar(&featureName, "name", "", "feature name")
	moveCmd.Flags().Float64Var(&moveDX, "dx", 0, "offset east in map meters")
	moveCmd.Flags().Float64Var(&moveDY, "dy", 0, "offset north in map meters")
}

func newClient() (*apiclient.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return apiclient.New(cfg.Backend, apiclient.WithTimeout(cfg.RequestTimeout())), cfg, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid id %q", s)
	}
	return id, nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all features",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		recs, err := client.GetAll(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(recs)
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a feature from WKT",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		rec, err := client.Save(cmd.Context(), featureWKT, featureName)
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace the geometry and name of a feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, _, err := newClient()
		if err != nil {
			return err
		}
		rec, err := client.Update(cmd.Context(), apiclient.Record{ID: id, WKT: featureWKT, Name: featureName})
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, _, err := newClient()
		if err != nil {
			return err
		}
		return client.Delete(cmd.Context(), id)
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records <id>",
	Short: "Show the edit history of a feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, _, err := newClient()
		if err != nil {
			return err
		}
		recs, err := client.Records(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(recs)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print change events from other sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		events, err := client.Events(cmd.Context())
		if err != nil {
			return err
		}
		for ev := range events {
			if err := printJSON(ev); err != nil {
				return err
			}
		}
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <id>",
	Short: "Drag a feature by an offset, as the map drag tool does",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, cfg, err := newClient()
		if err != nil {
			return err
		}
		return move(cmd.Context(), client, cfg.HitTolerance, id, moveDX, moveDY)
	},
}

// move 加载要素后在其锚点按下并拖动，等待同步结果
func move(ctx context.Context, api syncer.API, tolerance float64, id int64, dx, dy float64) error {
	notify := &cliNotifier{done: make(chan error, 1)}
	wb := panels.NewWorkbench(ctx, panels.Options{
		API:       api,
		UI:        syncer.Inline,
		Dialog:    headless{},
		Viewport:  headless{},
		Notifier:  notify,
		Tolerance: tolerance,
	})
	if err := wb.Load().Wait(ctx); err != nil {
		return err
	}
	f := wb.Collection().FindByID(id)
	if f == nil {
		return errors.Errorf("feature %d not found", id)
	}

	wb.EnableDrag()
	im := wb.Interaction()
	from := f.Anchor()
	to := orb.Point{from[0] + dx, from[1] + dy}
	im.PointerDown(from)
	im.PointerMove(to)
	im.PointerUp(to)

	select {
	case err := <-notify.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cliNotifier struct {
	done chan error
}

func (n *cliNotifier) Success(msg string) {
	logger.L().Info(msg)
	n.finish(nil)
}

func (n *cliNotifier) Error(msg string, err error) {
	logger.L().Errorf("%s: %v", msg, err)
	n.finish(errors.Wrap(err, msg))
}

func (n *cliNotifier) finish(err error) {
	select {
	case n.done <- err:
	default:
	}
}

// headless 命令行下没有表单和地图视图
type headless struct{}

func (headless) Open(*panels.Form) {}
func (headless) Close(*panels.Form) {}

func (headless) Fit(orb.Bound, panels.FitOptions) {}

var _ panels.Dialog = headless{}
var _ panels.Viewport = headless{}
