package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemos-dev/mnemos/internal/dedup"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.\nDuplicates and near-duplicates converge onto existing memories.",
		Run:   runIngest,
	}

	cmd.Flags().StringP("type", "t", "", "Memory type: episodic, semantic, procedural, working, sensory, preference")
	cmd.Flags().StringP("source", "s", "conversation", "Source type")
	cmd.Flags().Float64P("importance", "i", 0.5, "Importance in [0,1]")
	cmd.Flags().Float64("confidence", 0.5, "Confidence in [0,1]")
	cmd.Flags().String("session", "", "Session ID")
	cmd.Flags().String("user", "", "User ID")
	cmd.Flags().String("meta", "", "JSON metadata")
	cmd.Flags().Bool("chunk", false, "Split long content into fragments and ingest each")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	typeHint, _ := cmd.Flags().GetString("type")
	source, _ := cmd.Flags().GetString("source")
	importance, _ := cmd.Flags().GetFloat64("importance")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	session, _ := cmd.Flags().GetString("session")
	user, _ := cmd.Flags().GetString("user")
	meta, _ := cmd.Flags().GetString("meta")
	chunk, _ := cmd.Flags().GetBool("chunk")

	// Content: positional arg first, then stdin.
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("ingest", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	var metadata map[string]string
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
			exitErr("parse metadata", err)
		}
	}

	e, log, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()
	defer log.Sync()

	pieces := []string{content}
	if chunk {
		pieces = dedup.SplitContent(content, dedup.DefaultSplitOptions())
	}

	var results []*dedup.Result
	for _, piece := range pieces {
		res, err := e.Ingest(cmd.Context(), dedup.Candidate{
			Content:    piece,
			TypeHint:   typeHint,
			SourceType: source,
			Importance: importance,
			Confidence: confidence,
			SessionID:  session,
			UserID:     user,
			Metadata:   metadata,
		})
		if err != nil {
			exitErr("ingest", err)
		}
		results = append(results, res)
	}

	if len(results) == 1 {
		b, _ := json.MarshalIndent(results[0], "", "  ")
		fmt.Println(string(b))
		return
	}
	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}
