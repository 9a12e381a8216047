package common

import (
	"fmt"
	"os"
	"path/filepath"

	"klytic-pay-go/internal/models"

	"gopkg.in/yaml.v2"
)

type AssetsConfig struct {
	Assets []models.AssetConfig `yaml:"assets"`
}

func LoadAssetConfig(assetsFile string) ([]models.AssetConfig, error) {
	var assetsPath string
	if filepath.IsAbs(assetsFile) {
		assetsPath = assetsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		assetsPath = filepath.Join(wd, assetsFile)
	}

	data, err := os.ReadFile(assetsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", assetsFile, err)
	}

	var config AssetsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", assetsFile, err)
	}

	for i, asset := range config.Assets {
		if asset.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if asset.Kind != "native" && asset.Kind != "token" {
			return nil, fmt.Errorf("asset %s has unknown kind %q", asset.Symbol, asset.Kind)
		}
		if asset.PriceId == "" {
			return nil, fmt.Errorf("asset %s missing price_id", asset.Symbol)
		}
		if asset.Decimals <= 0 {
			return nil, fmt.Errorf("asset %s must have positive decimals", asset.Symbol)
		}
	}

	return config.Assets, nil
}

// LoadAssetPair reads the native coin and stable token from assetsFile. An empty
// path yields the default SOL/USDC pair; usdcMint fills a token entry without a mint.
func LoadAssetPair(assetsFile, usdcMint string) (models.AssetPair, error) {
	if assetsFile == "" {
		return models.DefaultAssetPair(usdcMint), nil
	}

	assets, err := LoadAssetConfig(assetsFile)
	if err != nil {
		return models.AssetPair{}, err
	}

	var pair models.AssetPair
	var haveNative, haveToken bool
	for _, asset := range assets {
		switch asset.Kind {
		case "native":
			if haveNative {
				return models.AssetPair{}, fmt.Errorf("%s defines more than one native asset", assetsFile)
			}
			pair.Native, haveNative = asset, true
		case "token":
			if haveToken {
				return models.AssetPair{}, fmt.Errorf("%s defines more than one token asset", assetsFile)
			}
			pair.Token, haveToken = asset, true
		}
	}
	if !haveNative || !haveToken {
		return models.AssetPair{}, fmt.Errorf("%s must define one native and one token asset", assetsFile)
	}

	if pair.Token.Mint == "" {
		pair.Token.Mint = usdcMint
	}
	if pair.Token.Mint == "" {
		pair.Token.Mint = models.DefaultUsdcMint
	}
	return pair, nil
}
