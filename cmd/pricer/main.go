// 期权定价命令行
//
//	pricer price --payoff put --style american --strike 100 --expiry 252 --spot 100 --vol 0.2
//	pricer serve --config pricer.yaml
package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"deriv.com/pkg/market"
	"deriv.com/pkg/option"
	"deriv.com/pkg/quote"
	"deriv.com/pkg/quoter"
)

var rootCmd = &cobra.Command{
	Use:   "pricer",
	Short: "Binomial lattice option pricer",
	Long:  `Prices European, American and Bermudan options on a recombining binomial lattice, with finite-difference Greeks.`,
}

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Price one option and print price and Greeks as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, m, req, err := priceArgs(cmd)
		if err != nil {
			return err
		}

		p := quoter.DefaultPricer()
		if p.LatticeWorkers, err = cmd.Flags().GetInt("workers"); err != nil {
			return err
		}
		p.MCWorkers = p.LatticeWorkers
		p = p.Merge(req)

		g, err := p.Price(req.Engine, in, m)
		if err != nil {
			return err
		}

		out := struct {
			Engine quote.Engine `json:"engine"`
			option.Greeks
		}{req.Engine, g}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func priceArgs(cmd *cobra.Command) (quoter.Instrument, market.Params, quoter.Request, error) {
	f := cmd.Flags()
	var (
		in  = quoter.Instrument{Symbol: "cli", Underlying: "cli"}
		m   market.Params
		req quoter.Request
		err error
	)
	get := func(name string, dst *float64) {
		if err == nil {
			*dst, err = f.GetFloat64(name)
		}
	}
	get("strike", &in.Strike)
	get("power", &in.Power)
	get("expiry", &in.Expiry)
	get("spot", &m.Spot)
	get("rate", &m.Rate)
	get("dividend", &m.Dividend)
	get("vol", &m.Vol)
	if err != nil {
		return in, m, req, err
	}

	if in.Payoff, err = f.GetString("payoff"); err != nil {
		return in, m, req, err
	}
	if in.Style, err = f.GetString("style"); err != nil {
		return in, m, req, err
	}
	if in.Times, err = f.GetFloat64Slice("times"); err != nil {
		return in, m, req, err
	}
	engine, err := f.GetString("engine")
	if err != nil {
		return in, m, req, err
	}
	req.Engine = quote.Engine(engine)
	if req.Steps, err = f.GetInt("steps"); err != nil {
		return in, m, req, err
	}
	if req.Paths, err = f.GetInt("paths"); err != nil {
		return in, m, req, err
	}
	if req.Seed, err = f.GetUint64("seed"); err != nil {
		return in, m, req, err
	}
	return in, m, req, in.Validate()
}

func main() {
	pf := priceCmd.Flags()
	pf.String("engine", string(quote.EngineLattice), "Pricing engine: lattice, montecarlo or analytic.")
	pf.String("payoff", "call", "Payoff kind, e.g. call, put, digital_call, power_call, straddle, arithmetic_asian_call, lookback_put_floating.")
	pf.String("style", "european", "Exercise style: european, american or bermudan.")
	pf.Float64("strike", 100, "Strike price.")
	pf.Float64("power", 0, "Exponent for power payoffs.")
	pf.Float64("expiry", 252, "Expiry in trading days (252 per year).")
	pf.Float64Slice("times", nil, "Bermudan exercise times in trading days, e.g. --times 63,126,189.")
	pf.Float64("spot", 100, "Spot price of the underlying.")
	pf.Float64("rate", 0.05, "Continuously compounded risk-free rate.")
	pf.Float64("dividend", 0, "Continuous dividend yield.")
	pf.Float64("vol", 0.2, "Annualised volatility.")
	pf.Int("steps", option.DefaultSteps, "Lattice steps.")
	pf.Int("workers", 1, "Parallel workers for lattice layers or Monte Carlo paths.")
	pf.Int("paths", 0, "Monte Carlo paths (0 = default).")
	pf.Uint64("seed", 0, "Monte Carlo seed (0 = default).")

	serveCmd.Flags().String("config", "", "Path to the YAML config. Defaults are used when empty.")
	serveCmd.Flags().StringSlice("env-file", nil, "Optional .env files loaded before the config (default .env).")

	rootCmd.AddCommand(priceCmd, serveCmd)
	cobra.CheckErr(rootCmd.Execute())
}
