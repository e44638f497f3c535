package fit

// Summary is the goodness of fit of a maximum likelihood estimate
type Summary struct {
	// LogLike is the maximized log-likelihood
	LogLike float64 `json:"log_like"`
	// AIC is Akaike information criterion
	AIC float64 `json:"AIC"`
	// AICc is AIC corrected for small sample sizes
	AICc float64 `json:"AICc"`
	// N is the number of observations
	N int `json:"n"`
	// K is the number of estimated parameters
	K int `json:"k"`
}

// Summarize returns summary of log-likelihood ll of n observations fitted with k parameters.
// AICc equals AIC when the small sample correction is undefined, i.e. n <= k+1.
func Summarize(ll float64, n, k int) Summary {
	aic := 2*float64(k) - 2*ll

	aicc := aic
	if n-k-1 > 0 {
		aicc += 2 * float64(k) * float64(k+1) / float64(n-k-1)
	}

	return Summary{
		LogLike: ll,
		AIC:     aic,
		AICc:    aicc,
		N:       n,
		K:       k,
	}
}
