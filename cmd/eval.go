package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	evalDataset string
	evalTopK    int
	evalReport  string
)

// evalCase is one question with substrings the retrieved context and the
// answer must contain.
type evalCase struct {
	Question string   `yaml:"q"`
	Expect   []string `yaml:"expect"`
}

type evalResult struct {
	Question  string `json:"q"`
	Recall    bool   `json:"recall"`
	AnswerOK  bool   `json:"answer_ok"`
	LatencyMs int64  `json:"latency_ms"`
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run a Q/A dataset against the index and report recall",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(evalDataset)
		if err != nil {
			return eris.Wrapf(err, "read dataset %s", evalDataset)
		}
		var cases []evalCase
		if err := yaml.Unmarshal(data, &cases); err != nil {
			return eris.Wrap(err, "parse dataset")
		}
		if len(cases) == 0 {
			return eris.New("dataset has no cases")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results := make([]evalResult, 0, len(cases))
		var latencies []int64
		recalls, answers := 0, 0

		for i, c := range cases {
			start := time.Now()

			hits, err := env.Hybrid.Search(ctx, c.Question, evalTopK)
			if err != nil {
				return eris.Wrapf(err, "search case %d", i+1)
			}
			var blob strings.Builder
			for _, h := range hits {
				blob.WriteString(strings.ToLower(h.Text))
				blob.WriteString(" ")
			}
			recall := containsAll(blob.String(), c.Expect)

			ans, err := env.Chain.Answer(ctx, c.Question, evalTopK)
			if err != nil {
				return eris.Wrapf(err, "answer case %d", i+1)
			}
			answerOK := containsAll(strings.ToLower(ans.Text), c.Expect)

			latency := time.Since(start).Milliseconds()
			latencies = append(latencies, latency)
			if recall {
				recalls++
			}
			if answerOK {
				answers++
			}
			results = append(results, evalResult{
				Question: c.Question, Recall: recall, AnswerOK: answerOK, LatencyMs: latency,
			})

			fmt.Printf("[%d/%d] recall=%v answer=%v %dms  :: %s\n",
				i+1, len(cases), recall, answerOK, latency, c.Question)
		}

		var sum, max int64
		for _, l := range latencies {
			sum += l
			if l > max {
				max = l
			}
		}
		n := len(cases)
		fmt.Printf("\nSUMMARY: n=%d recall@%d=%.1f%% answer=%.1f%% latency avg=%dms max=%dms\n",
			n, evalTopK, 100*float64(recalls)/float64(n), 100*float64(answers)/float64(n),
			sum/int64(n), max)

		if evalReport != "" {
			report, err := json.MarshalIndent(map[string]any{
				"n":           n,
				"recall_rate": float64(recalls) / float64(n),
				"answer_rate": float64(answers) / float64(n),
				"results":     results,
			}, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal report")
			}
			if err := os.WriteFile(evalReport, report, 0o644); err != nil {
				return eris.Wrap(err, "write report")
			}
			fmt.Printf("Report written to %s\n", evalReport)
		}

		if recalls < n {
			return eris.Errorf("%d of %d cases missed recall", n-recalls, n)
		}
		return nil
	},
}

func containsAll(blob string, expects []string) bool {
	for _, e := range expects {
		if !strings.Contains(blob, strings.ToLower(e)) {
			return false
		}
	}
	return true
}

func init() {
	evalCmd.Flags().StringVar(&evalDataset, "dataset", "eval_seed.yaml", "YAML dataset of {q, expect} cases")
	evalCmd.Flags().IntVar(&evalTopK, "k", 5, "memories retrieved per case")
	evalCmd.Flags().StringVar(&evalReport, "report", "", "write a JSON report to this file")
	rootCmd.AddCommand(evalCmd)
}
