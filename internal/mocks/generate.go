// Package mocks provides gomock implementations of the core ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	client := mocks.NewMockRMSClient(ctrl)
//	client.EXPECT().Send(gomock.Any(), gomock.Any()).Return(model.AttemptResult{StatusCode: 200})
//
// Stateful tests that need the claim protocol use the memstore subpackage instead.
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=rms_client_mock.go github.com/target/renewal-risk-api/internal/core RMSClient

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/renewal-risk-api/internal/core CacheRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=calculation_job_repository_mock.go github.com/target/renewal-risk-api/internal/core CalculationJobRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=delivery_repository_mock.go github.com/target/renewal-risk-api/internal/core DeliveryRepository
