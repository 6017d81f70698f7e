package model

// ChainID identifies an EVM chain.
type ChainID uint64

const (
	ChainEthereum ChainID = 1
	ChainOptimism ChainID = 10
	ChainBSC      ChainID = 56
	ChainPolygon  ChainID = 137
	ChainBase     ChainID = 8453
	ChainArbitrum ChainID = 42161
)

// Location is where an event happened: a chain or an exchange.
type Location string

const (
	LocationEthereum Location = "ethereum"
	LocationOptimism Location = "optimism"
	LocationBSC      Location = "binance_sc"
	LocationPolygon  Location = "polygon_pos"
	LocationBase     Location = "base"
	LocationArbitrum Location = "arbitrum_one"
	LocationKraken   Location = "kraken"
	LocationBinance  Location = "binance"
	LocationCoinbase Location = "coinbase"
	LocationExternal Location = "external"
)

var chainLocations = map[ChainID]Location{
	ChainEthereum: LocationEthereum,
	ChainOptimism: LocationOptimism,
	ChainBSC:      LocationBSC,
	ChainPolygon:  LocationPolygon,
	ChainBase:     LocationBase,
	ChainArbitrum: LocationArbitrum,
}

var nativeAssets = map[ChainID]string{
	ChainEthereum: "ETH",
	ChainOptimism: "ETH",
	ChainBSC:      "BNB",
	ChainPolygon:  "POL",
	ChainBase:     "ETH",
	ChainArbitrum: "ETH",
}

// Location maps the chain to its event location.
func (c ChainID) Location() Location {
	if loc, ok := chainLocations[c]; ok {
		return loc
	}
	return LocationExternal
}

// NativeAsset returns the identifier of the chain's gas asset.
func (c ChainID) NativeAsset() string {
	if asset, ok := nativeAssets[c]; ok {
		return asset
	}
	return "ETH"
}

// IsExchange reports whether the location is a centralized exchange.
func (l Location) IsExchange() bool {
	switch l {
	case LocationKraken, LocationBinance, LocationCoinbase:
		return true
	}
	return false
}
