package promo

func SetCodeGenerator(svc *Service, fn func() (string, error)) {
	svc.genCodeFn = fn
}
