package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/pipeline"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive reconciliation session",
	Long:  "Reads questions from stdin until exit. Follow-ups such as \"approve it\" resolve against the session's last verdict.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		sid, _ := cmd.Flags().GetString("session")
		if sid == "" {
			sid = uuid.NewString()
		}
		return runChat(ctx, env.Pipeline, sid, os.Stdin, os.Stdout)
	},
}

func init() {
	chatCmd.Flags().String("session", "", "session id to resume (default: new random id)")
	rootCmd.AddCommand(chatCmd)
}

// runChat runs the read-answer loop until in is exhausted or the user types
// exit or quit. Query errors are printed and the loop continues.
func runChat(ctx context.Context, p *pipeline.Pipeline, sessionID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Session %s. Type 'exit' to quit.\n", sessionID)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}

		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		ans, err := p.Handle(ctx, sessionID, line)
		if err != nil {
			zap.L().Error("chat: query failed", zap.String("session_id", sessionID), zap.Error(err))
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printAnswer(out, ans)
		fmt.Fprintln(out)
	}
}
