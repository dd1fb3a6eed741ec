package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/TxnLab/lsd/internal/lib/lsd"
)

// parseAddress accepts a base58 address, or @name for the address derived from name (handy for
// local test accounts).
func parseAddress(s string) (lsd.Address, error) {
	s = strings.TrimSpace(s)
	if name, found := strings.CutPrefix(s, "@"); found {
		if name == "" {
			return lsd.ZeroAddress, errors.New("empty account name")
		}
		return lsd.NamedAddress(name), nil
	}
	return lsd.ParseAddress(s)
}

// parseAmount parses a decimal base asset amount with up to 9 fractional digits into base units,
// ie: 1.5 -> 1500000000.
func parseAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("invalid amount:%q", s)
	}
	if len(frac) > 9 {
		return 0, fmt.Errorf("amount %s has more than 9 decimals", s)
	}
	var (
		wholeVal, fracVal uint64
		err               error
	)
	if whole != "" {
		if wholeVal, err = strconv.ParseUint(whole, 10, 64); err != nil {
			return 0, fmt.Errorf("invalid amount:%q: %w", s, err)
		}
	}
	if frac != "" {
		if fracVal, err = strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 64); err != nil {
			return 0, fmt.Errorf("invalid amount:%q: %w", s, err)
		}
	}
	if wholeVal > (^uint64(0)-fracVal)/lsd.CalBase {
		return 0, fmt.Errorf("amount %s overflows", s)
	}
	return wholeVal*lsd.CalBase + fracVal, nil
}

// parsePercent parses a percentage like 10 or 0.1 into the 1e9 scaled fraction used for fees and
// limits, ie: 10 -> 100000000.
func parsePercent(s string) (uint64, error) {
	val, err := parseAmount(s)
	if err != nil {
		return 0, err
	}
	return val / 100, nil
}

func getInt(prompt string, defVal int, minVal int, maxVal int) (int, error) {
	validate := func(input string) error {
		value, err := strconv.Atoi(input)
		if err != nil {
			return err
		}
		if value < minVal || value > maxVal {
			return fmt.Errorf("value must be between %d and %d", minVal, maxVal)
		}
		return nil
	}
	result, err := (&promptui.Prompt{
		Label:    prompt,
		Default:  strconv.Itoa(defVal),
		Validate: validate,
	}).Run()
	if err != nil {
		return 0, err
	}
	value, _ := strconv.Atoi(result)
	return value, nil
}

func getString(prompt string, defVal string) (string, error) {
	return (&promptui.Prompt{
		Label:   prompt,
		Default: defVal,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("value required")
			}
			return nil
		},
	}).Run()
}

func getAccount(prompt string, defVal string) (lsd.Address, error) {
	result, err := (&promptui.Prompt{
		Label:   prompt,
		Default: defVal,
		Validate: func(s string) error {
			_, err := parseAddress(s)
			return err
		},
	}).Run()
	if err != nil {
		return lsd.ZeroAddress, err
	}
	return parseAddress(result)
}

func yesNo(prompt string) (string, error) {
	return (&promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}).Run()
}

// promptInitParams asks for whatever pool init parameters weren't supplied as flags.
func promptInitParams(params *lsd.InitParams) error {
	var err error
	if params.Admin.IsZero() {
		if params.Admin, err = getAccount("Enter account address (or @name) for the 'admin' of the pool", ""); err != nil {
			return err
		}
	}
	if params.Creator.IsZero() {
		if params.Creator, err = getAccount("Enter the creator address the pool address is derived from", params.Admin.String()); err != nil {
			return err
		}
	}
	if params.StakingPool == "" {
		if params.StakingPool, err = getString("Enter the staking service pool to delegate to", ""); err != nil {
			return err
		}
	}
	if params.EraSeconds <= 0 {
		hours, err := getInt("Enter the era length (in hours)", 24, 1, 24*30)
		if err != nil {
			return err
		}
		params.EraSeconds = int64(hours) * 3600
	}
	result, err := yesNo(fmt.Sprintf("Create pool #%d for creator %s bound to staking pool %s", params.Index, params.Creator, params.StakingPool))
	if result != "y" {
		if err == nil {
			err = errors.New("aborted")
		}
		return err
	}
	return nil
}
