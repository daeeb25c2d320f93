package extension

// PaywallInfo contains information for displaying upgrade prompts
type PaywallInfo struct {
	Feature     string
	Title       string
	Description string
	UpgradeURL  string
	Price       string
}

// NarrativesPaywall returns paywall info for the AI Narratives feature
func NarrativesPaywall() PaywallInfo {
	return PaywallInfo{
		Feature:     "narratives",
		Title:       "AI Narratives is a Pro Feature",
		Description: "Get plain-English summaries of what changed in your attribution and why, written for your weekly marketing review.",
		UpgradeURL:  "https://attriflow.com/#pricing",
		Price:       "$100 one-time",
	}
}

// ScheduledReportsPaywall returns paywall info for the Scheduled Reports feature
func ScheduledReportsPaywall() PaywallInfo {
	return PaywallInfo{
		Feature:     "scheduled_reports",
		Title:       "Scheduled Reports is a Pro Feature",
		Description: "Deliver attribution performance reports to your inbox on a schedule you choose.",
		UpgradeURL:  "https://attriflow.com/#pricing",
		Price:       "$100 one-time",
	}
}
