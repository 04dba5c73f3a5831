package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fjod/tavros-checkout/internal/domain"
	"github.com/fjod/tavros-checkout/internal/fingerprint"
	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint [file|-]",
		Short: "Print the checkout key for a checkout JSON document",
		Long: "Reads a checkout document (email, userId, items, customer, shippingMethod,\n" +
			"shippingCost, currency) and prints the key used to deduplicate it.\n" +
			"Reads stdin when the argument is \"-\" or omitted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			key, err := readFingerprint(in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	return cmd
}

func readFingerprint(r io.Reader) (string, error) {
	var input domain.CheckoutFingerprintInput
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return "", fmt.Errorf("failed to decode checkout: %w", err)
	}
	return fingerprint.ComputeCheckoutKey(input), nil
}
