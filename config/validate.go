package config

import (
	"fmt"
	"sort"
)

var (
	MinVotingPeriodSeconds = uint64(3600)
)

// ValidateProtocol checks each section and the constraints that span
// sections.
func ValidateProtocol(p *Protocol) error {
	if err := p.Lending.Validate(); err != nil {
		return fmt.Errorf("lending: %w", err)
	}
	if err := p.Governance.Validate(); err != nil {
		return fmt.Errorf("governance: %w", err)
	}
	if p.Governance.VotingPeriodSeconds < MinVotingPeriodSeconds {
		return fmt.Errorf("governance: voting period below %d seconds", MinVotingPeriodSeconds)
	}
	if p.Governance.TimelockDelaySeconds < p.Timelock.MinDelaySeconds {
		return fmt.Errorf("governance: timelock delay %d below timelock minimum %d", p.Governance.TimelockDelaySeconds, p.Timelock.MinDelaySeconds)
	}
	if p.Lending.Timelock != TimelockAddress {
		return fmt.Errorf("lending: timelock must be %s", TimelockAddress)
	}
	for i, alloc := range p.Token.Allocations {
		if alloc.Account.IsZero() {
			return fmt.Errorf("token: allocation %d has no account", i)
		}
		if alloc.Amount == nil || alloc.Amount.Sign() <= 0 {
			return fmt.Errorf("token: allocation %d amount must be positive", i)
		}
	}
	if p.Oracle.IntervalSeconds == 0 || p.Oracle.MaxAgeSeconds == 0 {
		return fmt.Errorf("oracle: interval and max age must be positive")
	}
	if len(p.Oracle.Static) > 0 && p.Oracle.MinFeeds > len(p.Oracle.Static) {
		return fmt.Errorf("oracle: min feeds %d exceeds %d configured sources", p.Oracle.MinFeeds, len(p.Oracle.Static))
	}
	for _, asset := range p.Lending.AllowedCollateral {
		if _, ok := p.Lending.PriceFeeds[asset]; !ok {
			return fmt.Errorf("lending: collateral %s has no price feed", asset)
		}
	}
	if !p.Keeper.Disabled {
		if p.Keeper.IntervalSeconds == 0 {
			return fmt.Errorf("keeper: interval must be positive")
		}
		if p.Keeper.CreditEvery < 0 {
			return fmt.Errorf("keeper: credit cadence must not be negative")
		}
	}
	return nil
}

// Feeds lists the distinct oracle feeds referenced by the lending price map.
func (p *Protocol) Feeds() []string {
	seen := make(map[string]struct{}, len(p.Lending.PriceFeeds))
	feeds := make([]string, 0, len(p.Lending.PriceFeeds))
	for _, feed := range p.Lending.PriceFeeds {
		if _, ok := seen[feed]; ok || feed == "" {
			continue
		}
		seen[feed] = struct{}{}
		feeds = append(feeds, feed)
	}
	sort.Strings(feeds)
	return feeds
}
