package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/openreach/browserpilot/api/schemas"
	"github.com/openreach/browserpilot/internal/browser"
	"github.com/openreach/browserpilot/internal/browser/planner"
	"github.com/openreach/browserpilot/internal/observability"
	"github.com/openreach/browserpilot/internal/remote"
	"github.com/openreach/browserpilot/internal/settings"
)

const lastSessionKey = "last_session_id"

var browseFlags struct {
	sessionID  string
	browser    string
	headed     bool
	verify     bool
	clearFirst bool
	action     string
	target     string
	expected   string
	maxRetries int
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Manage and drive remote browser-automation sessions.",
}

var browseCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new remote browser session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		controller := newController(api)

		browserType := browseFlags.browser
		if browserType == "" {
			browserType = cfg.Browser().Type
		}
		session, err := controller.Create(cmd.Context(), schemas.CreateSessionOptions{
			BrowserType: browserType,
			Headless:    !browseFlags.headed && cfg.Browser().Headless,
		})
		if err != nil {
			return err
		}

		if err := sessionStore().Set(lastSessionKey, session.ID); err != nil {
			observability.GetLogger().Warn("could not remember session id: " + err.Error())
		}
		return printJSON(session)
	},
}

var browseNavigateCmd = &cobra.Command{
	Use:   "navigate <url>",
	Short: "Navigate the session to a URL.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := attachedController(cmd.Context())
		if err != nil {
			return err
		}
		if err := controller.Navigate(cmd.Context(), schemas.NavigateRequest{URL: args[0]}); err != nil {
			return err
		}
		return printJSON(controller.Session())
	},
}

var browseClickCmd = &cobra.Command{
	Use:   "click <selector>",
	Short: "Click an element.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := attachedController(cmd.Context())
		if err != nil {
			return err
		}
		result, err := controller.Click(cmd.Context(), args[0], browseFlags.verify)
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var browseTypeCmd = &cobra.Command{
	Use:   "type <selector> <text>",
	Short: "Type text into an element.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := attachedController(cmd.Context())
		if err != nil {
			return err
		}
		result, err := controller.TypeText(cmd.Context(), args[0], args[1], browseFlags.clearFirst)
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var browseExtractCmd = &cobra.Command{
	Use:   "extract <selector>",
	Short: "Extract content from an element without mutating the page.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := attachedController(cmd.Context())
		if err != nil {
			return err
		}
		result, err := controller.Extract(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var browsePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Submit a declarative plan the server executes with retries.",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newAPIClient()
		if err != nil {
			return err
		}
		controller := newController(api)
		if err := attachSession(cmd.Context(), controller); err != nil {
			return err
		}

		executor := planner.New(api, controller,
			planner.WithLogger(observability.GetLogger()),
			planner.WithIncludeHidden(cfg.Browser().IncludeHidden),
		)
		maxRetries := browseFlags.maxRetries
		if maxRetries == 0 {
			maxRetries = cfg.Browser().MaxRetries
		}
		exec, err := executor.Execute(cmd.Context(), schemas.Plan{
			Action:          schemas.ActionKind(browseFlags.action),
			Target:          browseFlags.target,
			ExpectedOutcome: browseFlags.expected,
			MaxRetries:      maxRetries,
		})
		if err != nil {
			return err
		}
		return printJSON(exec)
	},
}

var browseTreeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the session's interactive elements.",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := attachedController(cmd.Context())
		if err != nil {
			return err
		}
		tree := controller.Tree()
		if tree == nil {
			return errors.New("no accessibility snapshot available")
		}
		for _, element := range tree.InteractiveElements {
			fmt.Printf("%-12s %-30q %s\n", element.Role, element.Name, element.Selector)
		}
		return nil
	},
}

var browseCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the session and clear local state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := attachedController(cmd.Context())
		if err != nil {
			return err
		}
		closeErr := controller.Close(cmd.Context())
		if err := sessionStore().Set(lastSessionKey, ""); err != nil {
			observability.GetLogger().Warn("could not clear remembered session id: " + err.Error())
		}
		return closeErr
	},
}

func init() {
	browseCmd.PersistentFlags().StringVarP(&browseFlags.sessionID, "session", "s", "", "session id (default: the last created session)")
	browseCreateCmd.Flags().StringVar(&browseFlags.browser, "browser", "", "browser type (chromium, firefox, webkit)")
	browseCreateCmd.Flags().BoolVar(&browseFlags.headed, "headed", false, "run the remote browser with a visible window")
	browseClickCmd.Flags().BoolVar(&browseFlags.verify, "verify", false, "ask the server to verify the click outcome")
	browseTypeCmd.Flags().BoolVar(&browseFlags.clearFirst, "clear", false, "clear the field before typing")
	browsePlanCmd.Flags().StringVar(&browseFlags.action, "action", "click", "plan action (click, type, extract)")
	browsePlanCmd.Flags().StringVar(&browseFlags.target, "target", "", "plan target selector or description")
	browsePlanCmd.Flags().StringVar(&browseFlags.expected, "expected", "", "expected outcome the server verifies against")
	browsePlanCmd.Flags().IntVar(&browseFlags.maxRetries, "max-retries", 0, "retry budget (default from config)")
	_ = browsePlanCmd.MarkFlagRequired("target")

	browseCmd.AddCommand(browseCreateCmd, browseNavigateCmd, browseClickCmd,
		browseTypeCmd, browseExtractCmd, browsePlanCmd, browseTreeCmd, browseCloseCmd)
	rootCmd.AddCommand(browseCmd)
}

// -- Helpers --

func newAPIClient() (*remote.Client, error) {
	opts := []remote.Option{remote.WithLogger(observability.GetLogger())}
	if proxyAddr := cfg.API().SOCKSProxy; proxyAddr != "" {
		opts = append(opts, remote.WithSOCKSProxy(proxyAddr))
	}
	return remote.NewClient(cfg.API().BaseURL, opts...)
}

func newController(api browser.API) *browser.Controller {
	return browser.NewController(api,
		browser.WithControllerLogger(observability.GetLogger()),
		browser.WithIncludeHidden(cfg.Browser().IncludeHidden),
	)
}

func sessionStore() settings.Store {
	return settings.NewOSStore(cfg.Settings().Path)
}

// attachSession adopts the session named by --session, falling back to the
// remembered last session.
func attachSession(ctx context.Context, controller *browser.Controller) error {
	sessionID := browseFlags.sessionID
	if sessionID == "" {
		remembered, err := sessionStore().Get(lastSessionKey)
		if err != nil || remembered == "" {
			return errors.New("no session id given and none remembered; run 'browserpilot browse create' first")
		}
		sessionID = remembered
	}
	return controller.Attach(ctx, sessionID)
}

func attachedController(ctx context.Context) (*browser.Controller, error) {
	api, err := newAPIClient()
	if err != nil {
		return nil, err
	}
	controller := newController(api)
	if err := attachSession(ctx, controller); err != nil {
		return nil, err
	}
	return controller, nil
}

func printJSON(v any) error {
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(raw))
	return err
}

func printResult(result *schemas.ActionResult) error {
	if result.Uncertain {
		// Uncertainty is neither success nor failure; give it its own
		// surface so it is never mistaken for an error.
		fmt.Fprintf(os.Stderr, "note: outcome uncertain: %s\n", result.UncertainResponse)
	}
	return printJSON(result)
}
