package handler

import (
	"github.com/geodex-labs/geodex/pkg/apierr"
	"github.com/geodex-labs/geodex/pkg/models"
)

func validateIndexType(t string) *apierr.Error {
	if !models.IndexType(t).Valid() {
		return apierr.InvalidIndexType()
	}
	return nil
}

func validateDataSource(ds string) *apierr.Error {
	if ds == "" {
		return apierr.DataSourceRequired()
	}
	return nil
}

func validateRegion(region string) *apierr.Error {
	if region == "" {
		return apierr.RegionRequired()
	}
	if !models.ValidRegion(region) {
		return apierr.RegionInvalid()
	}
	return nil
}
