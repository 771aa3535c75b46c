package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpecs(t *testing.T) {
	configs, err := ParseSpecs("SMA:20, ema:9,RSI:14d,RSI:30m,BB:20:2.5,ROC:12")
	require.NoError(t, err)

	keys := make([]string, len(configs))
	for i, c := range configs {
		keys[i] = c.Key()
	}
	assert.Equal(t, []string{"SMA_20", "EMA_9", "RSI_14d", "RSI_30m", "BB_20_2.5", "ROC_12"}, keys)
	require.NotNil(t, configs[4].K)
	assert.Equal(t, 2.5, *configs[4].K)
}

func TestParseSpecs_EmptyYieldsDefaults(t *testing.T) {
	configs, err := ParseSpecs("  ")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigs(), configs)
}

func TestParseSpecs_Errors(t *testing.T) {
	for _, s := range []string{
		"SMA",         // no period
		"SMA:x",       // bad period
		"SMA:0",       // non-positive
		"SMA:9:2",     // multiplier on a non-BB type
		"BB:20:-1",    // negative multiplier
		"FOO:9",       // unknown type
		"SMA:9,SMA:9", // duplicate
		"RSI:0d",      // zero lookback
		"RSI:300000d", // lookback overflows a duration
		"A:1:2:3",     // too many fields
	} {
		_, err := ParseSpecs(s)
		assert.Error(t, err, s)
	}
}

func TestConfigKey_Defaults(t *testing.T) {
	assert.Equal(t, "RSI_14d", Config{Type: TypeRSI, Period: 14}.Key())
	assert.Equal(t, "BB_20_2", Config{Type: TypeBB, Period: 20}.Key())
}

func TestConfigsEqual(t *testing.T) {
	a := []Config{{Type: TypeSMA, Period: 9}, {Type: TypeEMA, Period: 9}}
	b := []Config{{Type: TypeEMA, Period: 9}, {Type: TypeSMA, Period: 9}}
	assert.True(t, ConfigsEqual(a, b))
	assert.False(t, ConfigsEqual(a, b[:1]))
	assert.False(t, ConfigsEqual(a, []Config{{Type: TypeEMA, Period: 9}, {Type: TypeSMA, Period: 10}}))
}

func TestNewBinding_RSIOverflow(t *testing.T) {
	_, err := newBinding(Config{Type: TypeRSI, Period: 300000, Unit: "d"})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = newBinding(Config{Type: TypeRSI, Period: 100000, Unit: "d"})
	assert.NoError(t, err)
}
