package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/reed/internal/repositories/ruleset"
	"github.com/Ramsey-B/reed/pkg/rules"
	"github.com/Ramsey-B/reed/pkg/trust"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage scoring rule documents",
	}
	cmd.AddCommand(newRulesRegisterCmd(a), newRulesValidateCmd(a))
	return cmd
}

func newRulesRegisterCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Validate and activate rule documents",
		Long:  "Registers every rule document in the rule folder (or a single file). Re-registering unchanged content reuses the existing rule set; changed content deactivates the prior version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			loader := rules.NewLoader(a.logger)
			var loaded []rules.LoadedRule
			if file != "" {
				rule, err := loader.LoadFile(file)
				if err != nil {
					return err
				}
				loaded = append(loaded, *rule)
			} else {
				var err error
				loaded, err = loader.LoadFolder(a.cfg.RuleFolderPath)
				if err != nil {
					return err
				}
			}

			repo := ruleset.NewRepository(a.db, a.logger)
			for _, rule := range loaded {
				registered, activated, err := repo.Register(ctx, rule.Document, rule.YamlHash)
				if err != nil {
					return err
				}
				a.logger.WithContext(ctx).WithFields(map[string]any{
					"path":        rule.Path,
					"entity_type": rule.Document.EntityType,
					"version":     rule.Document.Version,
					"rule_set_id": registered.ID,
					"activated":   activated,
				}).Info("Registered rule document")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "register a single rule document instead of the rule folder")
	return cmd
}

func newRulesValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate rule documents and the trust policy without touching the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			loader := rules.NewLoader(a.logger)
			loaded, err := loader.LoadFolder(a.cfg.RuleFolderPath)
			if err != nil {
				return err
			}
			for _, rule := range loaded {
				a.logger.WithContext(ctx).WithFields(map[string]any{
					"path":        rule.Path,
					"entity_type": rule.Document.EntityType,
					"version":     rule.Document.Version,
				}).Info("Rule document is valid")
			}

			policy, err := trust.LoadFile(a.cfg.TrustPolicyPath)
			if err != nil {
				return err
			}
			a.logger.WithContext(ctx).WithFields(map[string]any{
				"path":    a.cfg.TrustPolicyPath,
				"version": policy.Policy.Version,
				"sources": len(policy.Policy.Sources),
			}).Info("Trust policy is valid")
			return nil
		},
	}
}
