package xmldecoder

import (
	"github.com/antchfx/xmlquery"
)

// lotNode - один блок лота вместе с правилами извлечения его полей
type lotNode struct {
	node        *xmlquery.Node
	position    int
	numberExprs []string
	descExprs   []string
	priceExprs  []string
}

// strategy находит блоки лотов в документе конкретного типа
type strategy interface {
	lots(root *xmlquery.Node) []lotNode
}

// etpStrategy - объявление о торгах от оператора площадки (BiddingInvitation)
type etpStrategy struct{}

func (etpStrategy) lots(root *xmlquery.Node) []lotNode {
	nodes := xmlquery.Find(root, "//lotlist//lot")
	if len(nodes) == 0 {
		nodes = xmlquery.Find(root, "//lot")
	}
	return wrap(nodes,
		[]string{"number", "lotnumber"},
		[]string{"tradeobjecthtml", "description", ".//tradeobjecthtml", ".//description"},
		[]string{"startprice", ".//startprice"},
	)
}

// auctionStrategy - сообщение арбитражного управляющего о торгах (Auction, Auction2)
type auctionStrategy struct{}

func (auctionStrategy) lots(root *xmlquery.Node) []lotNode {
	nodes := xmlquery.Find(root, "//lottable//auctionlot")
	if len(nodes) == 0 {
		nodes = xmlquery.Find(root, "//auctionlot")
	}
	return wrap(nodes,
		[]string{"order", "number"},
		[]string{"description", "tradeobjecthtml", ".//description"},
		[]string{"startprice", ".//startprice"},
	)
}

// inventoryStrategy - опись имущества должника (PropertyInventoryResult).
// Номеров лотов здесь нет, номер берется из позиции в документе.
type inventoryStrategy struct{}

func (inventoryStrategy) lots(root *xmlquery.Node) []lotNode {
	nodes := xmlquery.Find(root, "//inventorybydebtor//item | //inventorybyfinancemanager//item")
	if len(nodes) == 0 {
		nodes = xmlquery.Find(root, "//item")
	}
	return wrap(nodes,
		nil,
		[]string{"name", "description", ".//name", ".//description"},
		[]string{"value", "cost", ".//value"},
	)
}

// evaluationStrategy - отчет оценщика (PropertyEvaluationReport). Оцениваемые объекты
// описаны так же, как позиции описи, номер берется из позиции.
type evaluationStrategy struct {
	fallback inventoryStrategy
}

func (e evaluationStrategy) lots(root *xmlquery.Node) []lotNode {
	nodes := xmlquery.Find(root, "//evaluationobjects//object | //objectlist//object")
	if len(nodes) == 0 {
		return e.fallback.lots(root)
	}
	return wrap(nodes,
		nil,
		[]string{"name", "description", ".//name", ".//description"},
		[]string{"marketvalue", "value", "cost", ".//marketvalue", ".//value"},
	)
}

func wrap(nodes []*xmlquery.Node, numberExprs, descExprs, priceExprs []string) []lotNode {
	out := make([]lotNode, 0, len(nodes))
	for i, n := range nodes {
		out = append(out, lotNode{
			node:        n,
			position:    i + 1,
			numberExprs: numberExprs,
			descExprs:   descExprs,
			priceExprs:  priceExprs,
		})
	}
	return out
}
