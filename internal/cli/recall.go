package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemos-dev/mnemos/internal/model"
	"github.com/mnemos-dev/mnemos/internal/recall"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Retrieve relevant memories",
		Long:  "Retrieve memories by free-text query, entities, or recency.\nStrategies run concurrently under a fixed latency budget.",
		Run:   runRecall,
	}

	cmd.Flags().StringSliceP("entity", "e", nil, "Entity names to match (repeatable)")
	cmd.Flags().StringP("type", "t", "", "Restrict to one memory type")
	cmd.Flags().String("session", "", "Restrict to one session")
	cmd.Flags().IntP("limit", "n", 10, "Maximum memories to return")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	entities, _ := cmd.Flags().GetStringSlice("entity")
	typeHint, _ := cmd.Flags().GetString("type")
	session, _ := cmd.Flags().GetString("session")
	limit, _ := cmd.Flags().GetInt("limit")

	q := recall.Query{
		Text:      strings.Join(args, " "),
		Entities:  entities,
		SessionID: session,
		Limit:     limit,
	}
	if typeHint != "" {
		mt, ok := model.ParseMemoryType(typeHint)
		if !ok {
			exitErr("recall", fmt.Errorf("unknown memory type %q", typeHint))
		}
		q.Types = []model.MemoryType{mt}
	}

	e, log, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()
	defer log.Sync()

	res, err := e.Recall(cmd.Context(), q)
	if err != nil {
		exitErr("recall", err)
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
