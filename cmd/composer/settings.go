package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/composer/pkg/config"
	"github.com/vanderheijden86/composer/pkg/prefs"
)

func newPrefsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Inspect or reset the remembered view state",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored view preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(s *prefs.Store) error {
				p := s.Load()
				if asJSON {
					data, err := json.MarshalIndent(p, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintln(a.out, string(data))
					return nil
				}
				fmt.Fprintf(a.out, "backend:        %s (%s)\n", a.cfg.Preferences.Backend, a.cfg.PrefsPath())
				fmt.Fprintf(a.out, "key:            %s\n", s.Key())
				if p.LastSaved.IsZero() {
					fmt.Fprintln(a.out, "last saved:     never")
				} else {
					fmt.Fprintf(a.out, "last saved:     %s\n", p.LastSaved.Format(time.RFC3339))
				}
				fmt.Fprintf(a.out, "hierarchy size: %d\n", p.HierarchySize)
				fmt.Fprintf(a.out, "remember:       %v\n", p.Settings.RememberExpansion)
				fmt.Fprintf(a.out, "auto-expand:    %v\n", p.Settings.AutoExpandOnEdit)
				fmt.Fprintf(a.out, "expanded (%d):  %s\n", len(p.ExpandedItems), strings.Join(p.ExpandedItems, ", "))
				return nil
			})
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print the raw record")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget the remembered expansion and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(s *prefs.Store) error {
				if !s.Reset() {
					return fmt.Errorf("could not reset %s", s.Key())
				}
				fmt.Fprintf(a.out, "reset %s\n", s.Key())
				return nil
			})
		},
	}

	snapshots := &cobra.Command{
		Use:   "snapshots",
		Short: "List saved expansion snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(s *prefs.Store) error {
				list := s.ListSnapshots()
				if len(list) == 0 {
					fmt.Fprintln(a.out, "no snapshots")
					return nil
				}
				for _, snap := range list {
					fmt.Fprintf(a.out, "%-20s %3d expanded  %s\n", snap.Name, len(snap.ExpandedItems), snap.Timestamp.Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	drop := &cobra.Command{
		Use:   "delete-snapshot <name>",
		Short: "Delete a saved snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *prefs.Store) error {
				if _, ok := s.LoadSnapshot(args[0]); !ok {
					return fmt.Errorf("snapshot %q not found", args[0])
				}
				if !s.DeleteSnapshot(args[0]) {
					return fmt.Errorf("could not delete snapshot %q", args[0])
				}
				fmt.Fprintf(a.out, "deleted snapshot %s\n", args[0])
				return nil
			})
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Change stored view settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			return a.withStore(func(s *prefs.Store) error {
				update := prefs.WithSettings(func(st *prefs.Settings) {
					if flags.Changed("auto-expand") {
						st.AutoExpandOnEdit, _ = flags.GetBool("auto-expand")
					}
					if flags.Changed("remember") {
						st.RememberExpansion, _ = flags.GetBool("remember")
					}
					if flags.Changed("max-remembered") {
						st.MaxRemembered, _ = flags.GetInt("max-remembered")
					}
				})
				if !s.Save(update) {
					return fmt.Errorf("could not save %s", s.Key())
				}
				st := s.Load().Settings
				fmt.Fprintf(a.out, "remember=%v auto-expand=%v max-remembered=%d\n",
					st.RememberExpansion, st.AutoExpandOnEdit, st.MaxRemembered)
				return nil
			})
		},
	}
	set.Flags().Bool("auto-expand", true, "reveal the entity being edited")
	set.Flags().Bool("remember", true, "restore expansion on the next start")
	set.Flags().Int("max-remembered", prefs.DefaultMaxRemembered, "cap on remembered expanded ids")

	cmd.AddCommand(show, reset, snapshots, drop, set)
	return cmd
}

func (a *app) withStore(fn func(*prefs.Store) error) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize configuration",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := encodeConfig(a.cfg, format)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, string(data))
			return nil
		},
	}
	show.Flags().StringVar(&format, "format", "yaml", "output format: yaml, toml or json")

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := json.MarshalIndent(config.Schema(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, string(data))
			return nil
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config and state locations",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.out, "config: %s\n", configFile(a))
			fmt.Fprintf(a.out, "prefs:  %s\n", a.cfg.PrefsPath())
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := configFile(a)
			if target == "" {
				return fmt.Errorf("cannot determine config directory")
			}
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}
			if err := config.SaveTo(config.DefaultConfig(), target); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s\n", target)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(show, schema, path, initCmd)
	return cmd
}

func configFile(a *app) string {
	if a.configPath != "" {
		return a.configPath
	}
	return config.ConfigPath()
}

func encodeConfig(cfg config.Config, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Marshal(cfg)
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}
