package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/bomflow/internal/config"
	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/knowledge"
)

// NewKnowledgeCmd создаёт группу команд администрирования базы знаний.
// Работает напрямую с файлом SQLite. Пустой путь берётся из конфигурации.
func NewKnowledgeCmd(outputFn func() *Output, kbPathFn func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Administer the parts and supplier knowledge base",
	}

	open := func() (*knowledge.Store, error) {
		path := kbPathFn()
		if path == "" {
			cfg, err := config.FromEnv()
			if err != nil {
				return nil, err
			}
			path = cfg.Knowledge.Path
		}
		return knowledge.Open(path)
	}

	cmd.AddCommand(
		newKnowledgeBanCmd(outputFn, open),
		newKnowledgeUnbanCmd(outputFn, open),
		newKnowledgeBannedCmd(outputFn, open),
		newKnowledgeAlternateCmd(outputFn, open),
		newKnowledgeSuppliersCmd(outputFn, open),
		newKnowledgeSupplierSetCmd(outputFn, open),
		newKnowledgeSeedCmd(outputFn, open),
	)

	return cmd
}

type openFn func() (*knowledge.Store, error)

func newKnowledgeBanCmd(outputFn func() *Output, open openFn) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "ban MPN",
		Short: "Ban a part",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := open()
			if err != nil {
				return err
			}
			defer kb.Close()

			if err := kb.BanPart(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Banned %s: %s", args[0], reason))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the part is banned (required)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func newKnowledgeUnbanCmd(outputFn func() *Output, open openFn) *cobra.Command {
	return &cobra.Command{
		Use:   "unban MPN",
		Short: "Remove a part ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := open()
			if err != nil {
				return err
			}
			defer kb.Close()

			if err := kb.UnbanPart(cmd.Context(), args[0]); err != nil {
				return err
			}
			outputFn().Success("Unbanned " + args[0])
			return nil
		},
	}
}

func newKnowledgeBannedCmd(outputFn func() *Output, open openFn) *cobra.Command {
	return &cobra.Command{
		Use:   "banned",
		Short: "List banned parts",
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := open()
			if err != nil {
				return err
			}
			defer kb.Close()

			banned, err := kb.ListBanned(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"MPN", "REASON", "BANNED"}
			rows := make([][]string, len(banned))
			for i, b := range banned {
				rows[i] = []string{b.MPN, b.Reason, b.BannedAt.Format("2006-01-02")}
			}
			outputFn().Print(headers, rows, banned)
			return nil
		},
	}
}

func newKnowledgeAlternateCmd(outputFn func() *Output, open openFn) *cobra.Command {
	return &cobra.Command{
		Use:   "alternate MPN ALTERNATE_MPN",
		Short: "Register an approved alternate part",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := open()
			if err != nil {
				return err
			}
			defer kb.Close()

			if err := kb.AddAlternate(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("%s approved as alternate for %s", args[1], args[0]))
			return nil
		},
	}
}

func newKnowledgeSuppliersCmd(outputFn func() *Output, open openFn) *cobra.Command {
	return &cobra.Command{
		Use:   "suppliers",
		Short: "List suppliers",
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := open()
			if err != nil {
				return err
			}
			defer kb.Close()

			suppliers, err := kb.ListSuppliers(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "TRUST", "ON_TIME", "QUALITY"}
			rows := make([][]string, len(suppliers))
			for i, s := range suppliers {
				rows[i] = []string{s.ID, s.Name, string(s.TrustLevel), pct(s.OnTimeRate), pct(s.QualityRate)}
			}
			outputFn().Print(headers, rows, suppliers)
			return nil
		},
	}
}

func newKnowledgeSupplierSetCmd(outputFn func() *Output, open openFn) *cobra.Command {
	var sup domain.Supplier
	var trust string

	cmd := &cobra.Command{
		Use:   "supplier-set ID",
		Short: "Create or update a supplier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := open()
			if err != nil {
				return err
			}
			defer kb.Close()

			sup.ID = args[0]
			sup.TrustLevel = domain.TrustLevel(trust)
			if err := kb.UpsertSupplier(cmd.Context(), sup); err != nil {
				return err
			}
			outputFn().Success("Saved supplier " + args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&sup.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&trust, "trust", "medium", "Trust level (high, medium, low, blocked)")
	cmd.Flags().Float64Var(&sup.OnTimeRate, "on-time", 0, "On-time delivery rate, 0..1")
	cmd.Flags().Float64Var(&sup.QualityRate, "quality", 0, "Quality acceptance rate, 0..1")
	cmd.Flags().StringVar(&sup.Notes, "notes", "", "Free-form notes")

	return cmd
}

func newKnowledgeSeedCmd(outputFn func() *Output, open openFn) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Add the default distributors to the supplier table",
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := open()
			if err != nil {
				return err
			}
			defer kb.Close()

			n, err := kb.SeedDefaultSuppliers(cmd.Context())
			if err != nil {
				return err
			}
			outputFn().Success("Seeded " + strconv.Itoa(n) + " suppliers")
			return nil
		},
	}
}

func pct(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}
